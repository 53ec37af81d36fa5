package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device aggregate by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByVendorID retrieves a device by its stable vendor identifier.
	// Returns ErrDeviceNotFound if no such device exists.
	GetByVendorID(ctx context.Context, vendorID string) (*Device, error)

	// GetBySlug retrieves a device by its slug.
	GetBySlug(ctx context.Context, slug string) (*Device, error)

	// List retrieves all devices with their channels and properties.
	List(ctx context.Context) ([]Device, error)

	// ListByCategory retrieves all devices of a category.
	ListByCategory(ctx context.Context, category Category) ([]Device, error)

	// Create inserts a new device (without channels).
	// Returns ErrDeviceExists on duplicate ID, slug or vendor ID.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device's mutable fields.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device and, via cascade, its channels and
	// properties. Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// EnsureChannel creates a channel if it does not already exist.
	EnsureChannel(ctx context.Context, deviceID string, channel Channel) error

	// EnsureProperty creates a property if it does not already exist.
	EnsureProperty(ctx context.Context, deviceID, channelIdentifier string, property Property) error

	// SetPropertyValue updates one property's value and timestamp.
	// Returns ErrPropertyNotFound if the target does not exist.
	SetPropertyValue(ctx context.Context, deviceID, channelIdentifier, propertyIdentifier, value string) error

	// SetConnectionState updates the device's reachability.
	SetConnectionState(ctx context.Context, id string, state ConnectionState, at time.Time) error

	// SetEnabled flips the operator-facing enabled flag.
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, slug, category, protocol, vendor_type, vendor_id,
	host, enabled, connection_state, connection_updated_at,
	manufacturer, model, firmware_version, created_at, updated_at`

// GetByID retrieves a device aggregate by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getOneBy(ctx, "id", id)
}

// GetByVendorID retrieves a device by its stable vendor identifier.
func (r *SQLiteRepository) GetByVendorID(ctx context.Context, vendorID string) (*Device, error) {
	return r.getOneBy(ctx, "vendor_id", vendorID)
}

// GetBySlug retrieves a device by its slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Device, error) {
	return r.getOneBy(ctx, "slug", slug)
}

func (r *SQLiteRepository) getOneBy(ctx context.Context, column, value string) (*Device, error) {
	query := fmt.Sprintf("SELECT %s FROM devices WHERE %s = ?", deviceColumns, column)

	row := r.db.QueryRowContext(ctx, query, value)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by %s: %w", column, err)
	}

	if err := r.loadChannels(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// List retrieves all devices with their channels and properties.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := fmt.Sprintf("SELECT %s FROM devices ORDER BY name", deviceColumns)
	return r.queryDevices(ctx, query)
}

// ListByCategory retrieves all devices of a category.
func (r *SQLiteRepository) ListByCategory(ctx context.Context, category Category) ([]Device, error) {
	query := fmt.Sprintf("SELECT %s FROM devices WHERE category = ? ORDER BY name", deviceColumns)
	return r.queryDevices(ctx, query, string(category))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Slug == "" {
		device.Slug = GenerateSlug(device.Name)
	}
	if device.ConnectionState == "" {
		device.ConnectionState = ConnectionUnknown
	}
	if err := ValidateDevice(device); err != nil {
		return err
	}

	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (id, name, slug, category, protocol, vendor_type,
			vendor_id, host, enabled, connection_state, connection_updated_at,
			manufacturer, model, firmware_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.Name, device.Slug, string(device.Category),
		device.Protocol, device.VendorType, device.VendorID, device.Host,
		boolToInt(device.Enabled), string(device.ConnectionState),
		nullableTime(device.ConnectionUpdatedAt),
		nullableString(device.Manufacturer), nullableString(device.Model),
		nullableString(device.FirmwareVersion),
		formatTime(device.CreatedAt), formatTime(device.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, device.VendorID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device's mutable fields. Channels and
// properties are managed through EnsureChannel and EnsureProperty.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	// Update does not write connection_state; default it so a caller-built
	// struct passes validation the same way Create does.
	if device.ConnectionState == "" {
		device.ConnectionState = ConnectionUnknown
	}
	if err := ValidateDevice(device); err != nil {
		return err
	}
	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET name = ?, slug = ?, category = ?, host = ?, enabled = ?,
			manufacturer = ?, model = ?, firmware_version = ?, updated_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		device.Name, device.Slug, string(device.Category), device.Host,
		boolToInt(device.Enabled),
		nullableString(device.Manufacturer), nullableString(device.Model),
		nullableString(device.FirmwareVersion),
		formatTime(device.UpdatedAt), device.ID)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRow(res, ErrDeviceNotFound)
}

// Delete removes a device; channels and properties cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(res, ErrDeviceNotFound)
}

// EnsureChannel creates a channel if it does not already exist. Existing
// channels are left untouched to preserve operator modifications.
func (r *SQLiteRepository) EnsureChannel(ctx context.Context, deviceID string, channel Channel) error {
	if err := ValidateIdentifier(channel.Identifier); err != nil {
		return err
	}
	if channel.ID == "" {
		channel.ID = GenerateID()
	}

	query := `
		INSERT INTO channels (id, device_id, identifier, name, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, identifier) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		channel.ID, deviceID, channel.Identifier, channel.Name,
		string(channel.Category), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("inserting channel: %w", err)
	}
	return nil
}

// EnsureProperty creates a property if it does not already exist.
func (r *SQLiteRepository) EnsureProperty(ctx context.Context, deviceID, channelIdentifier string, property Property) error {
	if err := ValidateIdentifier(property.Identifier); err != nil {
		return err
	}
	if property.ID == "" {
		property.ID = GenerateID()
	}

	channelID, err := r.channelID(ctx, deviceID, channelIdentifier)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO properties (id, channel_id, identifier, category, data_type,
			permissions, unit, format, value, value_updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(channel_id, identifier) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		property.ID, channelID, property.Identifier, string(property.Category),
		property.DataType, property.Permissions, property.Unit, property.Format,
		property.Value, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("inserting property: %w", err)
	}
	return nil
}

// SetPropertyValue updates one property's value and timestamp.
func (r *SQLiteRepository) SetPropertyValue(ctx context.Context, deviceID, channelIdentifier, propertyIdentifier, value string) error {
	if err := ValidateValue(value); err != nil {
		return err
	}

	query := `
		UPDATE properties
		SET value = ?, value_updated_at = ?
		WHERE identifier = ?
		  AND channel_id = (
			SELECT id FROM channels WHERE device_id = ? AND identifier = ?)`

	res, err := r.db.ExecContext(ctx, query,
		value, formatTime(time.Now().UTC()),
		propertyIdentifier, deviceID, channelIdentifier)
	if err != nil {
		return fmt.Errorf("updating property value: %w", err)
	}
	return requireRow(res, ErrPropertyNotFound)
}

// SetConnectionState updates the device's reachability.
func (r *SQLiteRepository) SetConnectionState(ctx context.Context, id string, state ConnectionState, at time.Time) error {
	if err := ValidateConnectionState(state); err != nil {
		return err
	}

	query := `
		UPDATE devices
		SET connection_state = ?, connection_updated_at = ?, updated_at = ?
		WHERE id = ?`

	now := formatTime(time.Now().UTC())
	res, err := r.db.ExecContext(ctx, query, string(state), formatTime(at.UTC()), now, id)
	if err != nil {
		return fmt.Errorf("updating connection state: %w", err)
	}
	return requireRow(res, ErrDeviceNotFound)
}

// SetEnabled flips the operator-facing enabled flag.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE devices SET enabled = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		boolToInt(enabled), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("updating enabled flag: %w", err)
	}
	return requireRow(res, ErrDeviceNotFound)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceFromRows(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	for i := range devices {
		if err := r.loadChannels(ctx, &devices[i]); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// loadChannels fills in the device's channels and their properties.
func (r *SQLiteRepository) loadChannels(ctx context.Context, device *Device) error {
	chQuery := `
		SELECT id, device_id, identifier, name, category, created_at
		FROM channels
		WHERE device_id = ?
		ORDER BY created_at, identifier`

	rows, err := r.db.QueryContext(ctx, chQuery, device.ID)
	if err != nil {
		return fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	device.Channels = nil
	for rows.Next() {
		var (
			ch        Channel
			category  string
			createdAt string
		)
		if err := rows.Scan(&ch.ID, &ch.DeviceID, &ch.Identifier, &ch.Name, &category, &createdAt); err != nil {
			return fmt.Errorf("scanning channel: %w", err)
		}
		ch.Category = Category(category)
		ch.CreatedAt = parseTime(createdAt)
		device.Channels = append(device.Channels, ch)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating channels: %w", err)
	}

	for i := range device.Channels {
		if err := r.loadProperties(ctx, &device.Channels[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) loadProperties(ctx context.Context, channel *Channel) error {
	query := `
		SELECT id, channel_id, identifier, category, data_type, permissions,
			unit, format, value, value_updated_at, created_at
		FROM properties
		WHERE channel_id = ?
		ORDER BY created_at, identifier`

	rows, err := r.db.QueryContext(ctx, query, channel.ID)
	if err != nil {
		return fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	channel.Properties = nil
	for rows.Next() {
		var (
			p              Property
			category       string
			value          sql.NullString
			valueUpdatedAt sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&p.ID, &p.ChannelID, &p.Identifier, &category,
			&p.DataType, &p.Permissions, &p.Unit, &p.Format,
			&value, &valueUpdatedAt, &createdAt); err != nil {
			return fmt.Errorf("scanning property: %w", err)
		}
		p.Category = Category(category)
		if value.Valid {
			p.Value = value.String
		}
		if valueUpdatedAt.Valid {
			t := parseTime(valueUpdatedAt.String)
			p.ValueUpdatedAt = &t
		}
		p.CreatedAt = parseTime(createdAt)
		channel.Properties = append(channel.Properties, p)
	}
	return rows.Err()
}

func (r *SQLiteRepository) channelID(ctx context.Context, deviceID, identifier string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM channels WHERE device_id = ? AND identifier = ?",
		deviceID, identifier).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%s", ErrChannelNotFound, deviceID, identifier)
	}
	if err != nil {
		return "", fmt.Errorf("querying channel id: %w", err)
	}
	return id, nil
}

// rowScanner abstracts over sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row *sql.Row) (*Device, error) {
	return scanDeviceRow(row)
}

func scanDeviceFromRows(rows *sql.Rows) (*Device, error) {
	return scanDeviceRow(rows)
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var (
		d                   Device
		category            string
		enabled             int
		connectionState     string
		connectionUpdatedAt sql.NullString
		manufacturer        sql.NullString
		model               sql.NullString
		firmware            sql.NullString
		createdAt           string
		updatedAt           string
	)

	err := scanner.Scan(&d.ID, &d.Name, &d.Slug, &category, &d.Protocol,
		&d.VendorType, &d.VendorID, &d.Host, &enabled, &connectionState,
		&connectionUpdatedAt, &manufacturer, &model, &firmware,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Category = Category(category)
	d.Enabled = enabled != 0
	d.ConnectionState = ConnectionState(connectionState)
	if connectionUpdatedAt.Valid {
		t := parseTime(connectionUpdatedAt.String)
		d.ConnectionUpdatedAt = &t
	}
	if manufacturer.Valid {
		d.Manufacturer = &manufacturer.String
	}
	if model.Valid {
		d.Model = &model.String
	}
	if firmware.Valid {
		d.FirmwareVersion = &firmware.String
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
