package models

import "time"

// CompressResult holds the result of compressing an artifact.
type CompressResult struct {
	InputPath      string
	OutputPath     string
	Codec          string
	OriginalSize   int64
	CompressedSize int64
	Reduction      float64 // percent saved, 0 when the input is empty
	Duration       time.Duration
	Error          error
}
