package version

// Version is the release version printed in the startup banner.
const Version = "1.0.0"
