package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays recognised environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookupString(lookup, "SITEMAP_URL"); ok {
		cfg.SitemapURL = v
	}
	if v, ok, err := lookupInt(lookup, "START_INDEX"); err != nil {
		return err
	} else if ok {
		cfg.Batch.Start = v
	}
	if v, ok, err := lookupInt(lookup, "END_INDEX"); err != nil {
		return err
	} else if ok {
		cfg.Batch.End = v
	}
	if v, ok := lookupString(lookup, "TG_TOKEN"); ok {
		cfg.TelegramToken = v
	}
	if v, ok := lookupString(lookup, "TG_CHAT_ID"); ok {
		cfg.TelegramChatID = v
	}
	if v, ok := lookupString(lookup, "MONITOR_OUTPUT_DIR"); ok {
		cfg.OutputDir = v
	}
	if v, ok := lookupString(lookup, "MONITOR_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupString(lookup, "MONITOR_SCHEDULE"); ok {
		cfg.Schedule = v
	}
	if v, ok, err := lookupDuration(lookup, "MONITOR_DELAY_MIN"); err != nil {
		return err
	} else if ok {
		cfg.DelayMin = v
	}
	if v, ok, err := lookupDuration(lookup, "MONITOR_DELAY_MAX"); err != nil {
		return err
	} else if ok {
		cfg.DelayMax = v
	}
	return nil
}

func lookupString(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func lookupInt(lookup LookupFunc, key string) (int, bool, error) {
	raw, ok := lookupString(lookup, key)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, true, nil
}

func lookupDuration(lookup LookupFunc, key string) (time.Duration, bool, error) {
	raw, ok := lookupString(lookup, key)
	if !ok {
		return 0, false, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, true, nil
}
