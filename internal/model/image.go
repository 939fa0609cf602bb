package model

// Image is an image loaded into the daemon.
type Image struct {
	ID   string
	Tags []string
}
