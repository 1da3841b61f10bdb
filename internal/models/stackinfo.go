package models

// PlaneFile records where one (time, channel) plane of a stack was written
type PlaneFile struct {
	// Time is the time point index, always 0 for CYX stacks
	Time int `yaml:"time"`

	// Channel is the channel index within the time point
	Channel int `yaml:"channel"`

	// Filename is the plane file name relative to the sidecar
	Filename string `yaml:"filename"`
}

// StackInfo is the axis metadata persisted next to a written stack so that it
// can be read back with the same layout.
type StackInfo struct {
	// Layout is the axis layout tag, CYX or TCYX
	Layout string `yaml:"layout"`

	// Times is the number of time points (1 for CYX)
	Times int `yaml:"times"`

	// Channels is the number of channels per time point
	Channels int `yaml:"channels"`

	// Height and Width are the plane dimensions in pixels
	Height int `yaml:"height"`
	Width  int `yaml:"width"`

	// Images is the total number of planes, Times*Channels
	Images int `yaml:"images"`

	// DType names the sample type of the plane files
	DType string `yaml:"dtype"`

	// Planes lists every plane file in time-major order
	Planes []PlaneFile `yaml:"planes"`
}
