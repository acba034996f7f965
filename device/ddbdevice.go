package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/guregu/dynamo/v2"
)

// DeviceRow is the DynamoDB shape of a device.
type DeviceRow struct {
	Uuid            string      `dynamo:"uuid,hash"` // Primary key
	UserUuid        string      `dynamo:"user_uuid"`
	Fingerprint     Fingerprint `dynamo:"fingerprint"`
	FingerprintHash string      `dynamo:"fingerprint_hash"`
	UserAgent       string      `dynamo:"user_agent"`
	IPAddress       string      `dynamo:"ip_address"`
	IsVPN           bool        `dynamo:"is_vpn"`
	ViolationCount  int         `dynamo:"violation_count"`
	TrustScore      int         `dynamo:"trust_score"`
	FirstSeenAt     time.Time   `dynamo:"first_seen_at"`
	LastSeenAt      time.Time   `dynamo:"last_seen_at"`
	Version         int         `dynamo:"version"` // For optimistic locking
}

// DynamoDbDeviceTable stores device fingerprints in DynamoDB.
type DynamoDbDeviceTable struct {
	ddbClient    *dynamodb.Client
	tableName    string
	devicesTable *dynamo.Table
}

func NewDynamoDbDeviceTable(ddbClient *dynamodb.Client, tableName string) *DynamoDbDeviceTable {
	ddb := &DynamoDbDeviceTable{
		ddbClient: ddbClient,
		tableName: tableName,
	}
	db := dynamo.NewFromIface(ddb.ddbClient)
	table := db.Table(ddb.tableName)
	ddb.devicesTable = &table

	return ddb
}

func (ddb *DynamoDbDeviceTable) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	row := new(DeviceRow)
	err := ddb.devicesTable.Get("uuid", id.String()).One(ctx, row)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	d, err := row.toDevice()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveDevice writes the row guarded by its version number.
func (ddb *DynamoDbDeviceTable) SaveDevice(ctx context.Context, d *Device) error {
	row := deviceToRow(*d)
	row.Version = d.Version + 1

	put := ddb.devicesTable.Put(row).If("attribute_not_exists(version) OR version = ?", d.Version)
	if err := put.Run(ctx); err != nil {
		if dynamo.IsCondCheckFailed(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("failed to put device: %w", err)
	}
	d.Version++
	return nil
}

func deviceToRow(d Device) DeviceRow {
	return DeviceRow{
		Uuid:            d.UUID.String(),
		UserUuid:        d.UserUUID.String(),
		Fingerprint:     d.Fingerprint,
		FingerprintHash: d.FingerprintHash,
		UserAgent:       d.UserAgent,
		IPAddress:       d.IPAddress,
		IsVPN:           d.IsVPN,
		ViolationCount:  d.ViolationCount,
		TrustScore:      d.TrustScore,
		FirstSeenAt:     d.FirstSeenAt,
		LastSeenAt:      d.LastSeenAt,
		Version:         d.Version,
	}
}

func (row DeviceRow) toDevice() (Device, error) {
	id, err := uuid.Parse(row.Uuid)
	if err != nil {
		return Device{}, fmt.Errorf("invalid device uuid %q: %w", row.Uuid, err)
	}
	userID, err := uuid.Parse(row.UserUuid)
	if err != nil {
		return Device{}, fmt.Errorf("invalid user uuid %q: %w", row.UserUuid, err)
	}
	return Device{
		UUID:            id,
		UserUUID:        userID,
		Fingerprint:     row.Fingerprint,
		FingerprintHash: row.FingerprintHash,
		UserAgent:       row.UserAgent,
		IPAddress:       row.IPAddress,
		IsVPN:           row.IsVPN,
		ViolationCount:  row.ViolationCount,
		TrustScore:      row.TrustScore,
		FirstSeenAt:     row.FirstSeenAt,
		LastSeenAt:      row.LastSeenAt,
		Version:         row.Version,
	}, nil
}
