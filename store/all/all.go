// Package all registers every available store implementation.
package all

import (
	_ "github.com/bornholm/remotedav/store/local"
	_ "github.com/bornholm/remotedav/store/memory"
	_ "github.com/bornholm/remotedav/store/s3"
	_ "github.com/bornholm/remotedav/store/sqlite"
)
