package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/export"
	"github.com/luke-wagner/PlantCare-Monitor/internal/gemini"
	"github.com/luke-wagner/PlantCare-Monitor/internal/greg"
	"github.com/luke-wagner/PlantCare-Monitor/models"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

var errNoPrompt = errors.New("a prompt or --plant is required")

var scrapeCommand = &cli.Command{
	Name:  "scrape",
	Usage: "fetch every plant of the configured greg.app user once and print plant_data.json records",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "greg.app username, overrides the config",
		},
		&cli.BoolFlag{
			Name:  "store",
			Usage: "also save the snapshots into the hub database",
		},
		&cli.StringFlag{
			Name:  "append",
			Usage: "append the records to a plant_data.json file",
		},
	},
	Action: scrape,
}

var exportCommand = &cli.Command{
	Name:  "export",
	Usage: "write the stored snapshot history as plant_data.json",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "output file, stdout when empty",
		},
	},
	Action: exportHistory,
}

var askCommand = &cli.Command{
	Name:      "ask",
	Usage:     "send a prompt to Gemini and print the answer",
	ArgsUsage: "<prompt>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "plant",
			Usage: "build a care prompt from the latest stored snapshot of this plant id",
		},
	},
	Action: ask,
}

var hashPasswordCommand = &cli.Command{
	Name:      "hash-password",
	Usage:     "print the bcrypt hash for auth.password_hash",
	ArgsUsage: "<password>",
	Action:    hashPassword,
}

func newGregClient(cfg *config.Config, username string) *greg.Client {
	if username == "" {
		username = cfg.Greg.Username
	}
	return greg.NewClient(greg.Config{
		BaseURL:           cfg.Greg.BaseURL,
		Username:          username,
		Timeout:           time.Duration(cfg.Greg.TimeoutSeconds) * time.Second,
		MaxPageBytes:      cfg.Greg.MaxPageBytes,
		RequestsPerSecond: cfg.Greg.RequestsPerSecond,
	})
}

func scrape(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	client := newGregClient(cfg, strings.TrimSpace(c.String("username")))

	ctx, cancel := withTimeout(c)
	defer cancel()

	page, err := client.FetchProfile(ctx)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	ids := greg.FindPlantIDs(page, client.Username())
	if len(ids) == 0 {
		return fmt.Errorf("no plants found on %s", client.ProfileURL())
	}

	data := make([]models.PlantData, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Collector.Workers, 1))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			html, err := client.FetchPlant(gctx, id)
			if err == nil {
				data[i], err = greg.ExtractPlantData(html)
			}
			if err != nil {
				// one bad plant page does not abort the others
				mu.Lock()
				fmt.Fprintf(c.App.ErrWriter, "plant %s: %v\n", id, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	var snaps []models.Snapshot
	for i, id := range ids {
		if data[i] == nil {
			continue
		}
		snaps = append(snaps, models.Snapshot{PlantID: id, TakenAt: now, Data: data[i]})
	}
	if len(snaps) == 0 {
		return fmt.Errorf("all %d plants failed", len(ids))
	}

	if c.Bool("store") {
		if err := storeSnapshots(cfg, client, snaps); err != nil {
			return err
		}
	}
	recs := export.Records(snaps)
	if path := c.String("append"); path != "" {
		if err := export.AppendFile(path, recs); err != nil {
			return fmt.Errorf("append %s: %w", path, err)
		}
	}
	return export.Write(c.App.Writer, recs)
}

func storeSnapshots(cfg *config.Config, client *greg.Client, snaps []models.Snapshot) error {
	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, s := range snaps {
		err := store.UpsertPlant(models.Plant{
			ID:       s.PlantID,
			Name:     s.Data.Name(),
			Species:  s.Data.Species(),
			URL:      client.PlantURL(s.PlantID),
			LastSeen: s.TakenAt,
		})
		if err != nil {
			return fmt.Errorf("store plant %s: %w", s.PlantID, err)
		}
		if _, err := store.InsertSnapshot(s); err != nil {
			return fmt.Errorf("store snapshot %s: %w", s.PlantID, err)
		}
	}
	return nil
}

func exportHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.AllSnapshots()
	if err != nil {
		return err
	}
	recs := export.Records(snaps)

	path := c.String("out")
	if path == "" {
		return export.Write(c.App.Writer, recs)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "wrote %d records to %s\n", len(recs), path)
	return nil
}

func ask(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	client := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	})

	prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if id := strings.TrimSpace(c.String("plant")); id != "" {
		store, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		snap, err := store.LatestSnapshot(id)
		_ = store.Close()
		if err != nil {
			return fmt.Errorf("plant %s: %w", id, err)
		}
		prompt = gemini.CarePrompt(snap.Data)
	}
	if prompt == "" {
		return errNoPrompt
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	text, err := client.GenerateContent(ctx, prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, text)
	return err
}

func hashPassword(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: plantctl hash-password <password>")
	}
	hash, err := utils.HashPassword(c.Args().First())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}
