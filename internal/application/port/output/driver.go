package output

import (
	"context"
	"errors"
)

// ErrDriverClosed is returned by driver methods once Close has been
// called. Pollers treat it as final rather than retrying against a dead
// driver.
var ErrDriverClosed = errors.New("driver closed")

// Driver is the seam to the live document. Implementations just read markup
// and dispatch primitive interactions; everything the engine knows it
// derives from ReadStructure.
//
// Targets use a small locator grammar:
//
//	#id                          element with matching id
//	[name="email"]               element with matching name
//	[name="plan"][value="pro"]   radio within a name group
//	/html/body/div[2]/input[1]   structural path, 1-based among same-tag siblings
type Driver interface {
	ReadStructure(ctx context.Context) (string, error)
	DispatchClick(ctx context.Context, target string) error
	SetValue(ctx context.Context, target, value string) error
	CurrentLocation() string
	Close() error
}

// Navigator is an optional driver capability for loading a document by URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Screenshotter is an optional driver capability used for abandonment
// artifacts.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
