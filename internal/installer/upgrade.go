package installer

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/tinyland/lab/app-manager/internal/launcher"
	"gitlab.com/tinyland/lab/app-manager/internal/registry"
)

// preservedKeys are the user-editable launcher fields carried across an
// upgrade (spec.md §4.5's "Upgrade flow").
var preservedKeys = []string{
	launcher.KeyHomepage,
	launcher.KeyUpdateURL,
	launcher.KeyKeywords,
	launcher.KeyStartupWMClass,
	launcher.KeyNoDisplay,
	launcher.KeyTerminal,
}

// Upgrade implements spec.md §4.5's Upgrade flow: preserve customization
// fields from the existing launcher, uninstall the old record, install
// the new bundle with the same mode, overlaying the preserved fields onto
// the freshly-generated launcher. Satisfies internal/updater.Upgrader.
func (e *Engine) Upgrade(ctx context.Context, rec *registry.Record, newBundlePath string, _ map[string]string) (*registry.Record, error) {
	preserved, err := e.capturePreservedFields(rec)
	if err != nil {
		e.warnf("upgrade %s: read existing launcher for preserved fields: %v", rec.Name, err)
		preserved = map[string]string{}
	}

	if err := e.Uninstall(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("uninstall previous version: %w", err)
	}

	updated, err := e.Install(ctx, newBundlePath, rec.Mode, preserved)
	if err != nil {
		return nil, fmt.Errorf("install new version: %w", err)
	}
	return updated, nil
}

func (e *Engine) capturePreservedFields(rec *registry.Record) (map[string]string, error) {
	data, err := os.ReadFile(rec.DesktopFile)
	if err != nil {
		return nil, err
	}
	entry, _ := launcher.Parse(string(data))

	preserved := make(map[string]string, len(preservedKeys))
	for _, key := range preservedKeys {
		if v, ok := entry.GetPrimary(key); ok {
			preserved[key] = v
		}
	}
	return preserved, nil
}
