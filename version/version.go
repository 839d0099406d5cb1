package version

// Version is the full version string, set at build time with
// -ldflags "-X github.com/mosaicnetworks/continuity/version.Version=...".
var Version = "0.1.0"
