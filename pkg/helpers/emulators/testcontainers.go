package emulators

// ImageContainer identifies an emulator container image and the port it
// serves on.
type ImageContainer struct {
	EmulatorImage    string
	EmulatorHTTPPort string
}

// GCImageContainer binds an emulator image to a Google Cloud project ID.
type GCImageContainer struct {
	ImageContainer
	ProjectID string
}
