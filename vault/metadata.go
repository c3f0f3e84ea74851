package vault

import "time"

// Platform identifies the host OS family, which determines where the
// injected secure storage actually keeps values.
type Platform string

const (
	PlatformOther   Platform = "other"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// StorageLocation names the native store backing keys on this platform.
func (p Platform) StorageLocation() string {
	switch p {
	case PlatformIOS:
		return "Keychain"
	case PlatformAndroid:
		return "Keystore"
	default:
		return "Secure Storage"
	}
}

// bundleVersion is written into the metadata of newly persisted bundles.
const bundleVersion = 1

// Metadata describes a persisted key bundle.
type Metadata struct {
	Platform        Platform  `json:"platform"`
	Timestamp       time.Time `json:"timestamp"`
	StorageLocation string    `json:"storageLocation"`
	KeySize         int       `json:"keySize"`
	Version         int       `json:"version"`
}

// newMetadata describes a bundle created now on the given platform.
func newMetadata(platform Platform, keySize int) Metadata {
	return Metadata{
		Platform:        platform,
		Timestamp:       time.Now().UTC(),
		StorageLocation: platform.StorageLocation(),
		KeySize:         keySize,
		Version:         bundleVersion,
	}
}

// legacyMetadata reconstructs metadata for bundles persisted before metadata
// was recorded. Version 0 and the zero timestamp mark it as synthesized.
func legacyMetadata(platform Platform, keySize int) Metadata {
	return Metadata{
		Platform:        platform,
		StorageLocation: platform.StorageLocation(),
		KeySize:         keySize,
	}
}
