package ipainfo

import "errors"

var (
	// ErrArchiveCorrupt is returned when the input is not a readable ZIP archive
	ErrArchiveCorrupt = errors.New("archive is corrupt or not a zip file")

	// ErrManifestDecode is returned when Info.plist is missing or unparseable
	ErrManifestDecode = errors.New("failed to decode manifest")

	// ErrProvisioningDecode is returned when the embedded provisioning profile
	// does not contain a recognizable property list
	ErrProvisioningDecode = errors.New("failed to decode provisioning profile")

	// ErrEntryNotFound is returned when a named entry is not in the archive
	ErrEntryNotFound = errors.New("entry not found in archive")

	// ErrNotPNG is returned when the icon does not start with the PNG signature
	ErrNotPNG = errors.New("not a png file")

	// ErrIconDecode is returned for structurally invalid PNG chunk data
	ErrIconDecode = errors.New("failed to decode icon")
)
