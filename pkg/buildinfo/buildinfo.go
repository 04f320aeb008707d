package buildinfo

// Version holds the application's version string, set at build time:
// go build -ldflags="-X github.com/Galad/musicmirror/pkg/buildinfo.Version=1.0.0"
var Version = "dev"

// Name is the canonical name of the application used for logging.
var Name = "MusicMirror"

// AppID identifies this application in lock files.
const AppID = "musicmirror"
