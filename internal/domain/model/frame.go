package model

import (
	"context"
	"time"
)

// Region is the bounding box of a detected face in frame pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is one extractor result.
type Face struct {
	Descriptor Descriptor
	Region     Region
}

// Frame is a single camera frame flowing through enrollment and recognition.
type Frame struct {
	ID         string    // optional client id, used to drop replays
	Source     string    // camera or kiosk name, recorded as the attendance location
	CapturedAt time.Time // capture time; drives the dedup window
	Image      []byte    // encoded image for server-side extractors
	Faces      []Face    // descriptors computed by the client, if any
}

// Extractor turns a frame into zero or more face descriptors.
// An empty result means no face was found and is not an error.
type Extractor interface {
	Extract(ctx context.Context, frame Frame) ([]Face, error)
}
