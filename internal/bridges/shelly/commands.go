package shelly

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Command is one canonical property write request.
type Command struct {
	// DeviceID is the canonical device record ID.
	DeviceID string

	// Channel and Property identify the target, e.g. "light_0"/"brightness".
	Channel  string
	Property string

	// Value is the requested canonical value, coerced per the property's
	// binding before any vendor call.
	Value any
}

// HandleResolver locates the live discovery handle for a device. Satisfied
// by *Adapter.
type HandleResolver interface {
	Handle(id string) DeviceHandle
}

// CommandPlatform executes canonical property writes against hardware.
//
// Writes in one batch that target the same physical channel are merged into
// as few vendor calls as possible: a colour light receives at most one
// colour command and one white command per channel regardless of how many
// properties the batch touches.
//
// Thread Safety: safe for concurrent use. Batches are independent; the
// platform does not serialize across callers.
type CommandPlatform struct {
	store    RecordStore
	resolver HandleResolver
	logger   Logger
}

// NewCommandPlatform creates a CommandPlatform.
func NewCommandPlatform(store RecordStore, resolver HandleResolver, logger Logger) *CommandPlatform {
	return &CommandPlatform{store: store, resolver: resolver, logger: logger}
}

// Process executes a single command. Equivalent to a one-element batch.
func (p *CommandPlatform) Process(ctx context.Context, cmd Command) error {
	ok, err := p.ProcessBatch(ctx, []Command{cmd})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: command %s/%s/%s not executed", ErrValidation, cmd.DeviceID, cmd.Channel, cmd.Property)
	}
	return nil
}

// ProcessBatch validates and executes a batch of commands. Validation runs
// for the whole batch before any vendor call: a single invalid value fails
// the batch without touching hardware. The boolean result is true only when
// every vendor call succeeded.
func (p *CommandPlatform) ProcessBatch(ctx context.Context, cmds []Command) (bool, error) {
	if len(cmds) == 0 {
		return true, nil
	}

	groups, err := p.groupCommands(ctx, cmds)
	if err != nil {
		return false, err
	}

	allOK := true
	for _, g := range groups {
		if err := p.executeGroup(ctx, g); err != nil {
			p.log().Error("command group failed",
				"device", g.rec.ID, "channel", g.channel, "error", err)
			allOK = false
		}
	}
	return allOK, nil
}

// commandGroup is the validated per-channel unit of work.
type commandGroup struct {
	rec      *DeviceRecord
	handle   DeviceHandle
	channel  string
	kind     string // "relay", "light", "roller"
	index    int
	bindings []PropertyBinding
	values   map[string]any // property identifier -> validated value
}

func (p *CommandPlatform) groupCommands(ctx context.Context, cmds []Command) ([]*commandGroup, error) {
	groups := make(map[string]*commandGroup)
	var order []*commandGroup

	for _, cmd := range cmds {
		key := cmd.DeviceID + "/" + cmd.Channel
		g, ok := groups[key]
		if !ok {
			var err error
			g, err = p.newGroup(ctx, cmd)
			if err != nil {
				return nil, err
			}
			groups[key] = g
			order = append(order, g)
		}

		binding, found := bindingForProperty(g.bindings, cmd.Channel, cmd.Property)
		if !found {
			return nil, fmt.Errorf("%w: no writable property %s on channel %s", ErrValidation, cmd.Property, cmd.Channel)
		}
		if binding.Permissions == PermReadOnly {
			return nil, fmt.Errorf("%w: property %s/%s is read-only", ErrValidation, cmd.Channel, cmd.Property)
		}

		value, err := coerceCommandValue(binding, cmd.Value)
		if err != nil {
			return nil, err
		}
		g.values[cmd.Property] = value
	}
	return order, nil
}

func (p *CommandPlatform) newGroup(ctx context.Context, cmd Command) (*commandGroup, error) {
	kind, index, err := parseChannelIdentifier(cmd.Channel)
	if err != nil {
		return nil, err
	}

	devices, err := p.store.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("shelly: list devices: %w", err)
	}
	var rec *DeviceRecord
	for i := range devices {
		if devices[i].ID == cmd.DeviceID {
			rec = &devices[i]
			break
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: device %s", ErrValidation, cmd.DeviceID)
	}
	if !rec.Enabled {
		return nil, fmt.Errorf("%w: device %s is disabled", ErrValidation, cmd.DeviceID)
	}

	handle := p.resolver.Handle(rec.VendorID)
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceVanished, rec.ID)
	}
	desc, err := ResolveDescriptor(handle.Type())
	if err != nil {
		return nil, err
	}

	return &commandGroup{
		rec:      rec,
		handle:   handle,
		channel:  cmd.Channel,
		kind:     kind,
		index:    index,
		bindings: activeBindings(desc, handle),
		values:   make(map[string]any),
	}, nil
}

func (p *CommandPlatform) executeGroup(ctx context.Context, g *commandGroup) error {
	switch g.kind {
	case "relay":
		return p.executeRelay(ctx, g)
	case "light":
		return p.executeLight(ctx, g)
	case "roller":
		return p.executeRoller(ctx, g)
	default:
		return fmt.Errorf("%w: channel kind %q", ErrValidation, g.kind)
	}
}

func (p *CommandPlatform) executeRelay(ctx context.Context, g *commandGroup) error {
	on, ok := g.values["state"].(bool)
	if !ok {
		return fmt.Errorf("%w: relay channel %s has no state write", ErrValidation, g.channel)
	}
	setter, isSetter := g.handle.(RelaySetter)
	if !isSetter {
		return fmt.Errorf("%w: device %s cannot switch relays", ErrUnsupported, g.rec.ID)
	}
	if err := setter.SetRelay(ctx, g.index, on); err != nil {
		return err
	}
	p.log().Debug("relay switched", "device", g.rec.ID, "index", g.index, "on", on)
	return nil
}

// executeLight merges every light property write for one channel into at
// most one colour command and one white command. Which path applies follows
// from the properties present in the batch, which in turn follow from the
// active binding set.
func (p *CommandPlatform) executeLight(ctx context.Context, g *commandGroup) error {
	var (
		color    ColorCommand
		white    WhiteCommand
		hasColor bool
		hasWhite bool
	)

	for prop, value := range g.values {
		switch prop {
		case "state":
			on := value.(bool)
			color.On = &on
			onW := on
			white.On = &onW
		case "red":
			n := value.(int)
			color.Red = &n
			hasColor = true
		case "green":
			n := value.(int)
			color.Green = &n
			hasColor = true
		case "blue":
			n := value.(int)
			color.Blue = &n
			hasColor = true
		case "white":
			n := value.(int)
			color.White = &n
			hasColor = true
		case "gain":
			n := value.(int)
			color.Gain = &n
			hasColor = true
		case "brightness":
			n := value.(int)
			white.Brightness = &n
			hasWhite = true
		case "color_temperature":
			n := value.(int)
			white.Temperature = &n
			hasWhite = true
		default:
			return fmt.Errorf("%w: light property %q", ErrValidation, prop)
		}
	}

	// A bare on/off with no colour or white component goes down whichever
	// path the handle supports, preferring white.
	if !hasColor && !hasWhite {
		if _, ok := g.handle.(WhiteSetter); ok {
			hasWhite = true
		} else {
			hasColor = true
		}
	}

	if hasColor {
		setter, ok := g.handle.(ColorSetter)
		if !ok {
			return fmt.Errorf("%w: device %s has no colour support", ErrUnsupported, g.rec.ID)
		}
		if err := setter.SetColor(ctx, g.index, color); err != nil {
			return err
		}
	}
	if hasWhite {
		setter, ok := g.handle.(WhiteSetter)
		if !ok {
			return fmt.Errorf("%w: device %s has no white support", ErrUnsupported, g.rec.ID)
		}
		if err := setter.SetWhite(ctx, g.index, white); err != nil {
			return err
		}
	}
	p.log().Debug("light updated", "device", g.rec.ID, "index", g.index,
		"color", hasColor, "white", hasWhite)
	return nil
}

func (p *CommandPlatform) executeRoller(ctx context.Context, g *commandGroup) error {
	setter, ok := g.handle.(RollerSetter)
	if !ok {
		return fmt.Errorf("%w: device %s has no roller support", ErrUnsupported, g.rec.ID)
	}

	// An explicit command wins over a position write in the same batch;
	// stop must take effect even when a stale position slider rides along.
	if cmd, present := g.values["command"]; present {
		return setter.SendRollerCommand(ctx, g.index, cmd.(string))
	}
	if pos, present := g.values["position"]; present {
		return setter.SetRollerPosition(ctx, g.index, pos.(int))
	}
	return fmt.Errorf("%w: roller channel %s has no actionable write", ErrValidation, g.channel)
}

// coerceCommandValue validates and converts a canonical value per its
// binding. Numeric values clamp to the binding's range; enums must match
// exactly.
func coerceCommandValue(b PropertyBinding, value any) (any, error) {
	switch b.DataType {
	case TypeBool:
		return ParseBool(value)
	case TypeInt:
		minV, maxV := parseRange(b.Format, 0, 100)
		return ParseIntClamped(value, minV, maxV)
	case TypeFloat:
		return ParseNumber(value)
	case TypeEnum:
		return ValidateEnum(value, strings.Split(b.Format, ","))
	case TypeString:
		return FormatValue(value), nil
	default:
		return nil, fmt.Errorf("%w: data type %q", ErrValidation, b.DataType)
	}
}

// parseRange reads a "min:max" format string, falling back to the given
// defaults when absent or malformed.
func parseRange(format string, defMin, defMax int) (int, int) {
	parts := strings.SplitN(format, ":", 2)
	if len(parts) != 2 {
		return defMin, defMax
	}
	minV, errA := strconv.Atoi(parts[0])
	maxV, errB := strconv.Atoi(parts[1])
	if errA != nil || errB != nil || minV > maxV {
		return defMin, defMax
	}
	return minV, maxV
}

func parseChannelIdentifier(channel string) (string, int, error) {
	idx := strings.LastIndex(channel, "_")
	if idx <= 0 || idx == len(channel)-1 {
		return "", 0, fmt.Errorf("%w: channel identifier %q", ErrValidation, channel)
	}
	kind := channel[:idx]
	n, err := strconv.Atoi(channel[idx+1:])
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("%w: channel identifier %q", ErrValidation, channel)
	}
	switch kind {
	case "relay", "light", "roller":
		return kind, n, nil
	default:
		return "", 0, fmt.Errorf("%w: channel %q is not commandable", ErrValidation, channel)
	}
}

func bindingForProperty(bindings []PropertyBinding, channel, property string) (PropertyBinding, bool) {
	for _, b := range bindings {
		if b.Channel == channel && b.Property == property {
			return b, true
		}
	}
	return PropertyBinding{}, false
}

func (p *CommandPlatform) log() Logger {
	if p.logger != nil {
		return p.logger
	}
	return noopLogger{}
}
