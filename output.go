package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	xslice "github.com/frantjc/x/slice"
	"github.com/futuredapp/bitrise-step-ipa-info/pkg/ipainfo"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// deviceFamilies names the values of UIDeviceFamily
var deviceFamilies = map[int]string{
	1: "iPhone",
	2: "iPad",
	3: "Apple TV",
	4: "Apple Watch",
	6: "Mac",
	7: "Apple Vision",
}

func printMetadata(w io.Writer, md *ipainfo.Metadata, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(md); err != nil {
			return err
		}
		return enc.Close()
	default:
		printSummary(w, md)
		return nil
	}
}

func printSummary(w io.Writer, md *ipainfo.Metadata) {
	app := md.AppInfo
	prov := md.ProvisioningInfo

	fmt.Fprintln(w, "IPA Information")
	fmt.Fprintln(w, "===============")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)

	table.Append([]string{"File size", fmt.Sprintf("%s (%d bytes)", humanize.Bytes(md.FileSizeBytes), md.FileSizeBytes)})
	if md.Digest != "" {
		table.Append([]string{"Digest", md.Digest})
	}
	table.Append([]string{"Icon", orNone(md.IconPath)})
	table.Append([]string{"App title", orNone(xslice.Coalesce(app.Title, app.DisplayName))})
	table.Append([]string{"Bundle ID", orNone(app.BundleIdentifier)})
	table.Append([]string{"Version", orNone(app.Version)})
	table.Append([]string{"Build number", orNone(app.BuildNumber)})
	table.Append([]string{"Minimum OS", orNone(app.MinimumOSVersion)})
	table.Append([]string{"Device family", orNone(familyNames(app.DeviceFamily))})
	if len(app.Architectures) > 0 {
		table.Append([]string{"Architectures", strings.Join(app.Architectures, ", ")})
	}

	table.Append([]string{"Profile name", orNone(deref(prov.ProfileName))})
	table.Append([]string{"Team name", orNone(deref(prov.TeamName))})
	if prov.TeamIdentifier != nil {
		table.Append([]string{"Team ID", *prov.TeamIdentifier})
	}
	table.Append([]string{"Created", formatTime(prov.CreationDate)})
	table.Append([]string{"Expires", formatTime(prov.ExpirationDate)})
	table.Append([]string{"All devices", formatBool(prov.ProvisionsAllDevices)})
	if prov.ExportMethod != "" {
		table.Append([]string{"Export method", prov.ExportMethod})
	}
	if prov.IdentityMatches != nil {
		table.Append([]string{"Identity in profile", formatBool(prov.IdentityMatches)})
	}

	table.Render()
}

func familyNames(families []int) string {
	names := make([]string, 0, len(families))
	for _, f := range families {
		if name, ok := deviceFamilies[f]; ok {
			names = append(names, name)
		} else {
			names = append(names, strconv.Itoa(f))
		}
	}
	return strings.Join(names, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatBool(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}
