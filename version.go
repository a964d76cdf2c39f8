package mobility

// Version is the release of the module.
const Version = "v0.3.0"
