package ipainfo

import (
	"strconv"
	"time"
)

// Info.plist keys read into AppInfo
const (
	KeyBundleName         = "CFBundleName"
	KeyBundleDisplayName  = "CFBundleDisplayName"
	KeyBundleIdentifier   = "CFBundleIdentifier"
	KeyShortVersionString = "CFBundleShortVersionString"
	KeyBundleVersion      = "CFBundleVersion"
	KeyMinimumOSVersion   = "MinimumOSVersion"
	KeyDeviceFamily       = "UIDeviceFamily"
	KeyBundleExecutable   = "CFBundleExecutable"
)

// Metadata is the result of inspecting an IPA. It is built once by Inspect
// and not modified afterwards.
type Metadata struct {
	FileSizeBytes    uint64           `json:"file_size_bytes" yaml:"file_size_bytes"`
	Digest           string           `json:"digest,omitempty" yaml:"digest,omitempty"`
	IconPath         string           `json:"icon_path,omitempty" yaml:"icon_path,omitempty"`
	AppInfo          AppInfo          `json:"app_info" yaml:"app_info"`
	ProvisioningInfo ProvisioningInfo `json:"provisioning_info" yaml:"provisioning_info"`
}

// AppInfo holds the fields read from the application's Info.plist.
// Missing keys leave the corresponding field empty.
type AppInfo struct {
	Title            string   `json:"app_title" yaml:"app_title"`
	DisplayName      string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	BundleIdentifier string   `json:"bundle_id" yaml:"bundle_id"`
	Version          string   `json:"version" yaml:"version"`
	BuildNumber      string   `json:"build_number" yaml:"build_number"`
	MinimumOSVersion string   `json:"min_OS_version" yaml:"min_OS_version"`
	DeviceFamily     []int    `json:"device_family_list" yaml:"device_family_list"`
	Executable       string   `json:"executable,omitempty" yaml:"executable,omitempty"`
	Architectures    []string `json:"architectures,omitempty" yaml:"architectures,omitempty"`
}

// ProvisioningInfo holds the fields read from the embedded provisioning
// profile. Every field is nil when the profile is absent or undecodable.
type ProvisioningInfo struct {
	CreationDate         *time.Time `json:"creation_date" yaml:"creation_date"`
	ExpirationDate       *time.Time `json:"expire_date" yaml:"expire_date"`
	TeamName             *string    `json:"team_name" yaml:"team_name"`
	TeamIdentifier       *string    `json:"team_identifier,omitempty" yaml:"team_identifier,omitempty"`
	ProfileName          *string    `json:"profile_name" yaml:"profile_name"`
	UUID                 *string    `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	ProvisionsAllDevices *bool      `json:"provisions_all_devices" yaml:"provisions_all_devices"`
	ProvisionedDevices   int        `json:"provisioned_devices,omitempty" yaml:"provisioned_devices,omitempty"`
	ExportMethod         string     `json:"export_method,omitempty" yaml:"export_method,omitempty"`
	IdentityMatches      *bool      `json:"identity_matches,omitempty" yaml:"identity_matches,omitempty"`
}

// NewAppInfo reads AppInfo from a decoded Info.plist
func NewAppInfo(info Dict) AppInfo {
	families, _ := info.Ints(KeyDeviceFamily)
	if families == nil {
		// Older manifests store a single integer instead of an array
		if f, ok := info.Int(KeyDeviceFamily); ok {
			families = []int{int(f)}
		}
	}

	return AppInfo{
		Title:            info.StringOr(KeyBundleName),
		DisplayName:      info.StringOr(KeyBundleDisplayName),
		BundleIdentifier: info.StringOr(KeyBundleIdentifier),
		Version:          info.StringOr(KeyShortVersionString),
		BuildNumber:      info.StringOr(KeyBundleVersion),
		MinimumOSVersion: info.StringOr(KeyMinimumOSVersion),
		DeviceFamily:     families,
		Executable:       info.StringOr(KeyBundleExecutable),
	}
}

// Output is a single named value handed to an export collaborator
type Output struct {
	Key   string
	Value string
}

// Outputs returns the values exported for downstream build steps, in a fixed order
func (m *Metadata) Outputs() []Output {
	var profileName string
	if m.ProvisioningInfo.ProfileName != nil {
		profileName = *m.ProvisioningInfo.ProfileName
	}

	return []Output{
		{Key: "IOS_IPA_PACKAGE_NAME", Value: m.AppInfo.BundleIdentifier},
		{Key: "IOS_IPA_FILE_SIZE", Value: strconv.FormatUint(m.FileSizeBytes, 10)},
		{Key: "IOS_APP_NAME", Value: m.AppInfo.Title},
		{Key: "IOS_APP_VERSION_NAME", Value: m.AppInfo.Version},
		{Key: "IOS_APP_VERSION_CODE", Value: m.AppInfo.BuildNumber},
		{Key: "IOS_ICON_PATH", Value: m.IconPath},
		{Key: "IOS_APP_PROFILE_NAME", Value: profileName},
	}
}
