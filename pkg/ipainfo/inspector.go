package ipainfo

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
)

// IconFileName is the name of the decoded icon written next to the IPA
const IconFileName = "icon.png"

// Option configures Inspect
type Option func(*inspector)

type inspector struct {
	iconPath       string
	skipIcon       bool
	skipExecutable bool
	identity       *SigningIdentity
}

// WithIconPath writes the decoded icon to p instead of icon.png next to the IPA
func WithIconPath(p string) Option {
	return func(i *inspector) {
		i.iconPath = p
	}
}

// WithoutIcon skips icon extraction
func WithoutIcon() Option {
	return func(i *inspector) {
		i.skipIcon = true
	}
}

// WithoutExecutable skips reading the architectures of the main executable
func WithoutExecutable() Option {
	return func(i *inspector) {
		i.skipExecutable = true
	}
}

// WithSigningIdentity checks whether the identity's certificate is part of
// the embedded provisioning profile
func WithSigningIdentity(identity *SigningIdentity) Option {
	return func(i *inspector) {
		i.identity = identity
	}
}

// Inspect reads the metadata of the IPA at ipaPath. A missing or unreadable
// Info.plist fails the inspection; problems with the provisioning profile,
// the executable or the icon are logged and leave the related fields empty.
func Inspect(ctx context.Context, ipaPath string, opts ...Option) (*Metadata, error) {
	var (
		log = logr.FromContextOrDiscard(ctx)
		i   = &inspector{}
	)

	for _, opt := range opts {
		opt(i)
	}

	if i.iconPath == "" {
		i.iconPath = filepath.Join(filepath.Dir(ipaPath), IconFileName)
	}

	log.V(1).Info("opening IPA", "path", ipaPath)
	a, err := OpenArchive(ipaPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		log.V(1).Info("closing IPA", "path", ipaPath)
		_ = a.Close()
	}()

	infoEntry, appInfo, err := readAppInfo(a)
	if err != nil {
		return nil, err
	}
	log.V(1).Info("read manifest", "entry", infoEntry, "bundleIdentifier", appInfo.BundleIdentifier)

	provisioningInfo := i.readProvisioningInfo(log, a)

	fi, err := os.Stat(ipaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat IPA: %w", err)
	}

	dig, err := fileDigest(ipaPath)
	if err != nil {
		log.Error(err, "unable to compute IPA digest")
	}

	if !i.skipExecutable && appInfo.Executable != "" {
		exe := path.Join(AppBundleDir(infoEntry), appInfo.Executable)
		if arches, err := readArchitectures(a, exe); err != nil {
			log.Error(err, "unable to read executable architectures", "entry", exe)
		} else {
			appInfo.Architectures = arches
		}
	}

	var iconPath string
	if !i.skipIcon {
		iconPath = i.resolveIcon(log, a)
	}

	return &Metadata{
		FileSizeBytes:    uint64(fi.Size()),
		Digest:           dig.String(),
		IconPath:         iconPath,
		AppInfo:          appInfo,
		ProvisioningInfo: provisioningInfo,
	}, nil
}

func readAppInfo(a *Archive) (string, AppInfo, error) {
	entry, ok := a.Find(InfoPlistPattern)
	if !ok {
		return "", AppInfo{}, fmt.Errorf("%w: Info.plist not found in IPA", ErrManifestDecode)
	}

	data, err := a.ReadEntry(entry)
	if err != nil {
		return "", AppInfo{}, fmt.Errorf("%w: %v", ErrManifestDecode, err)
	}

	info, err := ParsePlist(data)
	if err != nil {
		return "", AppInfo{}, fmt.Errorf("failed to parse %s: %w", entry, err)
	}

	return entry, NewAppInfo(info), nil
}

func (i *inspector) readProvisioningInfo(log logr.Logger, a *Archive) ProvisioningInfo {
	entry, ok := a.Find(EmbeddedProfilePattern)
	if !ok {
		log.Info("no embedded provisioning profile found")
		return ProvisioningInfo{}
	}

	data, err := a.ReadEntry(entry)
	if err != nil {
		log.Error(err, "unable to read provisioning profile", "entry", entry)
		return ProvisioningInfo{}
	}

	profile, err := ParseProvisioningProfile(data)
	if err != nil {
		log.Error(err, "unable to parse provisioning profile", "entry", entry)
		return ProvisioningInfo{}
	}

	info := profile.Info()
	if i.identity != nil {
		matches := i.identity.MatchesProfile(profile)
		info.IdentityMatches = &matches
	}

	return info
}

func (i *inspector) resolveIcon(log logr.Logger, a *Archive) string {
	entry, ok := LocateIcon(a)
	if !ok {
		log.Info("no AppIcon*.png found in IPA")
		// Do not leave an icon from an earlier run behind
		if err := os.Remove(i.iconPath); err != nil && !os.IsNotExist(err) {
			log.Error(err, "unable to remove stale icon", "path", i.iconPath)
		}
		return ""
	}

	log.V(1).Info("extracting icon", "entry", entry, "path", i.iconPath)
	if err := a.ExtractEntry(entry, i.iconPath); err != nil {
		log.Error(err, "unable to extract icon", "entry", entry)
		_ = os.Remove(i.iconPath)
		return ""
	}

	if err := NormalizePNGFile(i.iconPath, i.iconPath); err != nil {
		log.Error(err, "unable to decode icon", "entry", entry)
		_ = os.Remove(i.iconPath)
		return ""
	}

	return i.iconPath
}

func readArchitectures(a *Archive, entry string) ([]string, error) {
	data, err := a.ReadEntry(entry)
	if err != nil {
		return nil, err
	}

	return Architectures(data)
}

func fileDigest(name string) (digest.Digest, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return digest.FromReader(f)
}
