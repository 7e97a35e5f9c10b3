package molviz

import "errors"

var (
	// ErrInvalidExtension is returned for uploads whose name does not end in .pdb.
	ErrInvalidExtension = errors.New("please upload a file with a .pdb extension only")

	// ErrDecode wraps every failure of the molecule decoder.
	ErrDecode = errors.New("cannot decode molecule")

	ErrUnknownStyle    = errors.New("unknown render style")
	ErrUnknownPreset   = errors.New("unknown preset molecule")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrInvalidViewport = errors.New("viewport width and height must be positive")
	ErrFileTooLarge    = errors.New("uploaded file exceeds the size limit")
	ErrNoScene         = errors.New("no scene has been built yet")
)
