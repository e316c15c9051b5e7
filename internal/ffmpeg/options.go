package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType names a capture input option in capture.options.
type OptionType string

// Capture input options.
const (
	OptionGeneratePTS        OptionType = "genpts"
	OptionIgnoreDTS          OptionType = "igndts"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
)

// ExclusiveGroup collects options of which at most one may be selected.
type ExclusiveGroup string

// GroupThreadQueue holds the thread queue sizes.
const GroupThreadQueue ExclusiveGroup = "thread_queue"

// Option describes an input option and the arguments it adds before -i.
type Option struct {
	Key         OptionType     `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Default     bool           `json:"default"`
	Group       ExclusiveGroup `json:"group,omitempty"`
	Conflicts   []OptionType   `json:"conflicts,omitempty"`

	args   []string
	fflags string
}

// AllOptions is the option catalogue, in the order arguments are emitted.
var AllOptions = []Option{
	{
		Key:         OptionGeneratePTS,
		Name:        "Generate PTS",
		Description: "Generate presentation timestamps for devices that omit them",
		Conflicts:   []OptionType{OptionWallclockTimestamp},
		fflags:      "+genpts",
	},
	{
		Key:         OptionIgnoreDTS,
		Name:        "Ignore DTS",
		Description: "Ignore decode timestamps of corrupted streams",
		fflags:      "+igndts",
	},
	{
		Key:         OptionWallclockTimestamp,
		Name:        "Wallclock Timestamps",
		Description: "Stamp captured frames with the wall clock",
		Conflicts:   []OptionType{OptionGeneratePTS},
		args:        []string{"-use_wallclock_as_timestamps", "1"},
	},
	{
		Key:         OptionThreadQueue1024,
		Name:        "Large Thread Queue",
		Description: "Queue up to 1024 packets per input",
		Default:     true,
		Group:       GroupThreadQueue,
		args:        []string{"-thread_queue_size", "1024"},
	},
	{
		Key:         OptionThreadQueue4096,
		Name:        "Extra Large Thread Queue",
		Description: "Queue up to 4096 packets per input, for devices that burst",
		Group:       GroupThreadQueue,
		args:        []string{"-thread_queue_size", "4096"},
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Disable input buffering",
		args:        []string{"-flags", "+low_delay"},
		fflags:      "+nobuffer",
	},
}

// LookupOption returns the catalogue entry for key.
func LookupOption(key OptionType) (Option, bool) {
	for _, o := range AllOptions {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// DefaultOptions returns the options enabled when none are configured.
func DefaultOptions() []OptionType {
	var keys []OptionType
	for _, o := range AllOptions {
		if o.Default {
			keys = append(keys, o.Key)
		}
	}
	return keys
}

// ValidateOptions rejects unknown keys, two options of one exclusive group
// and conflicting pairs.
func ValidateOptions(selected []OptionType) error {
	chosen := make(map[OptionType]Option, len(selected))
	byGroup := make(map[ExclusiveGroup]string)
	for _, key := range selected {
		o, ok := LookupOption(key)
		if !ok {
			return fmt.Errorf("unknown ffmpeg option %q", key)
		}
		if o.Group != "" {
			if other, taken := byGroup[o.Group]; taken && other != o.Name {
				return fmt.Errorf("options %q and %q are both in group %q", other, o.Name, o.Group)
			}
			byGroup[o.Group] = o.Name
		}
		chosen[key] = o
	}

	for _, o := range chosen {
		for _, c := range o.Conflicts {
			if other, ok := chosen[c]; ok {
				return fmt.Errorf("option %q conflicts with %q", o.Name, other.Name)
			}
		}
	}
	return nil
}

// inputArgs renders the selected options in catalogue order, with their
// -fflags merged into one argument at the end.
func inputArgs(selected []OptionType) []string {
	want := make(map[OptionType]bool, len(selected))
	for _, key := range selected {
		want[key] = true
	}

	var args []string
	var fflags strings.Builder
	for _, o := range AllOptions {
		if !want[o.Key] {
			continue
		}
		args = append(args, o.args...)
		fflags.WriteString(o.fflags)
	}
	if fflags.Len() > 0 {
		args = append(args, "-fflags", fflags.String())
	}
	return args
}
