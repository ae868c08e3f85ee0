package version

// Set with -ldflags "-X github.com/luke-wagner/PlantCare-Monitor/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)
