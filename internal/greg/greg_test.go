package greg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilePage = `<html><body>
<nav><a href="/luke/">Luke</a></nav>
<ul>
  <li><a href="/luke/plants/Ab12Cd34/">Fern</a></li>
  <li><a href="/luke/plants/Ef56Gh78/">Aloe</a></li>
  <li><a href="/luke/plants/Ab12Cd34/"><img src="fern.jpg"></a></li>
</ul>
</body></html>`

const plantPage = `<html><head><title>Fern</title></head><body>
<h1>greg</h1>
<article class="card" id="other"><h1>Not this</h1></article>
<article id="plant-profile" class="profile">
  <h1> Fernando </h1>
  <h3><em>Nephrolepis</em> exaltata</h3>
  <div class="plant-detail"><img src="/static/icons/water.svg" alt="water"><span> in 2 days </span></div>
  <div class="plant-detail"><img alt="pot-size"><span>6 in</span></div>
  <div class="plant-detail"><span>no icon</span></div>
  <div class="plant-detail"><img src="/static/icons/light.png?v=3"></div>
  <div class="plant-detail wide"><img src="sun.png"><span>Bright indirect</span></div>
</article>
</body></html>`

func TestFindPlantIDs(t *testing.T) {
	ids := FindPlantIDs(profilePage, "luke")
	assert.Equal(t, []string{"Ab12Cd34", "Ef56Gh78"}, ids)
}

func TestFindPlantIDsFallsBackToLowercase(t *testing.T) {
	ids := FindPlantIDs(profilePage, "Luke")
	assert.Equal(t, []string{"Ab12Cd34", "Ef56Gh78"}, ids)
}

func TestFindPlantIDsDropsTruncated(t *testing.T) {
	assert.Empty(t, FindPlantIDs(`<a href="/luke/plants/abc`, "luke"))
	assert.Empty(t, FindPlantIDs(`<a href="/luke/plants/ab/">x</a>`, "luke"))
	assert.Empty(t, FindPlantIDs(profilePage, ""))
}

func TestPlantIDFromURL(t *testing.T) {
	assert.Equal(t, "Ab12Cd34", PlantIDFromURL("http://greg.app/luke/plants/Ab12Cd34/"))
	assert.Equal(t, "", PlantIDFromURL("x"))
}

func TestURLs(t *testing.T) {
	c := NewClient(Config{Username: "Luke"})
	assert.Equal(t, "http://greg.app/luke/", c.ProfileURL())
	assert.Equal(t, "http://greg.app/luke/plants/Ab12Cd34/", c.PlantURL("Ab12Cd34"))
}

func TestExtractPlantData(t *testing.T) {
	data, err := ExtractPlantData(plantPage)
	require.NoError(t, err)
	assert.Equal(t, "Fernando", data.Name())
	assert.Equal(t, "Nephrolepis exaltata", data.Species())
	assert.Equal(t, "in 2 days", data["water"])
	assert.Equal(t, "6 in", data["pot_size"])
	assert.Equal(t, "Bright indirect", data["sun"])
	assert.NotContains(t, data, "light")
	assert.Len(t, data, 5)
}

func TestExtractPlantDataNameAfterArticle(t *testing.T) {
	page := `<article id="plant-profile"><div class="card"></div></article>
<section><h1>Monty</h1><h3>Monstera deliciosa</h3>
<div class="plant-detail"><img src="/static/icons/water.svg"><span>today</span></div></section>`
	data, err := ExtractPlantData(page)
	require.NoError(t, err)
	assert.Equal(t, "Monty", data.Name())
	assert.Equal(t, "Monstera deliciosa", data.Species())
	assert.Equal(t, "today", data["water"])
}

func TestExtractPlantDataErrors(t *testing.T) {
	_, err := ExtractPlantData(`<html><body><h1>nothing</h1></body></html>`)
	assert.ErrorIs(t, err, ErrNoProfile)

	_, err = ExtractPlantData(`<article id="plant-profile"><p>empty</p></article>`)
	assert.ErrorIs(t, err, ErrNoPlantData)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Nephrolepis exaltata", StripTags(" <i>Nephrolepis</i> exaltata "))
	assert.Equal(t, "", StripTags("<br/>"))
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/luke/":
			_, _ = w.Write([]byte(profilePage))
		case "/luke/plants/Ab12Cd34/":
			_, _ = w.Write([]byte(plantPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", Username: "Luke", Timeout: 5 * time.Second})
	ctx := context.Background()

	page, err := c.FetchProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ab12Cd34", "Ef56Gh78"}, FindPlantIDs(page, c.Username()))

	page, err = c.FetchPlant(ctx, "Ab12Cd34")
	require.NoError(t, err)
	assert.Contains(t, page, "plant-profile")

	_, err = c.FetchPlant(ctx, "Ef56Gh78")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClientCapsPageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Username: "luke", MaxPageBytes: 100})
	page, err := c.FetchProfile(context.Background())
	require.NoError(t, err)
	assert.Len(t, page, 100)
}

func TestClientRequiresUsername(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.FetchProfile(context.Background())
	assert.ErrorIs(t, err, ErrNoUsername)
}

func TestClientHonorsContext(t *testing.T) {
	c := NewClient(Config{Username: "luke", RequestsPerSecond: 0.001})
	// consume the single burst token
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.FetchProfile(ctx)
	assert.Error(t, err)
}
