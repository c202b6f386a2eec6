package ipainfo

import (
	"path"
	"strings"
)

const (
	iconPrefix = "AppIcon"
	iconSuffix = ".png"
)

// LocateIcon finds the first AppIcon*.png directly inside an app bundle under
// Payload/. Bundles and their children are visited in archive order.
func LocateIcon(a *Archive) (string, bool) {
	bundles, err := a.Entries(PayloadDir)
	if err != nil {
		return "", false
	}

	for _, bundle := range bundles {
		if !bundle.IsDir {
			continue
		}

		dir := path.Join(PayloadDir, bundle.Name)
		children, err := a.Entries(dir)
		if err != nil {
			continue
		}

		for _, child := range children {
			if !child.IsDir && isAppIcon(child.Name) {
				return path.Join(dir, child.Name), true
			}
		}
	}

	return "", false
}

func isAppIcon(name string) bool {
	return strings.HasPrefix(name, iconPrefix) && strings.HasSuffix(name, iconSuffix)
}
