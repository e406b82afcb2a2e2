// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package version

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/coretrusts/amdb/internal/amdberrors"
)

const (
	dynamoRecordPrefix   = "record#"
	dynamoCheckpointKey  = "__checkpoint__"
	dynamoAttrPK         = "pk"
	dynamoAttrValue      = "value"
	dynamoAttrVersion    = "version"
	dynamoAttrTombstone  = "tombstone"
	dynamoAttrSchemaVer  = "schema_version"
	dynamoAttrCheckpoint = "checkpoint_id"
	dynamoAttrRoot       = "root"
	dynamoAttrSnapshot   = "snapshot"
)

// dynamoStore is the optional durability backend backed by
// aws-sdk-go-v2/service/dynamodb, for deployments that want state held
// durably outside the process rather than in local segment files. Here
// DynamoDB is the destination of record rather than a source being mirrored
// into a KV bucket.
//
// Each live key is one item ("record#"+key); the checkpoint is a single
// well-known item carrying the Merkle root, version, and a full msgpack
// snapshot of the live set, the same copy-on-write strategy fileStore uses.
// Load replays only items committed after the checkpoint's version, but
// finding them takes a full table scan with a server-side filter,
// acceptable for the reference sizes this backend targets (see DESIGN.md).
type dynamoStore struct {
	client *dynamodb.Client
	table  string
}

// DynamoEndpointOverride holds connection details for pointing dynamoStore
// at a local DynamoDB (e.g. dynamodb-local for development) instead of the
// default AWS endpoint resolution chain.
type DynamoEndpointOverride struct {
	URL       string
	AccessKey string
	SecretKey string
}

// NewDynamoStore constructs the DynamoDB-backed durability backend for the
// named table. The table must exist already; amdb never issues
// CreateTable — provisioning is an operator concern. override is the zero
// value in production, where the default SDK credential and endpoint chain
// applies.
func NewDynamoStore(ctx context.Context, table string, override DynamoEndpointOverride) (Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if override.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(override.AccessKey, override.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("amdb: loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if override.URL != "" {
			o.BaseEndpoint = aws.String(override.URL)
		}
	})
	return &dynamoStore{client: client, table: table}, nil
}

func (d *dynamoStore) Open(_ context.Context) error { return nil }
func (d *dynamoStore) Close() error                 { return nil }

func (d *dynamoStore) Append(ctx context.Context, rec Record) error {
	item := map[string]types.AttributeValue{
		dynamoAttrPK:        &types.AttributeValueMemberS{Value: dynamoRecordPrefix + string(rec.Key)},
		dynamoAttrValue:     &types.AttributeValueMemberB{Value: rec.Value},
		dynamoAttrVersion:   &types.AttributeValueMemberN{Value: strconv.FormatUint(rec.Version, 10)},
		dynamoAttrTombstone: &types.AttributeValueMemberBOOL{Value: rec.Tombstone},
	}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: dynamodb put item: %v", amdberrors.ErrDurabilityFailure, err)
	}
	return nil
}

func (d *dynamoStore) Flush(ctx context.Context, snapshot []SnapshotEntry, root [32]byte, ver uint64) error {
	blob, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("amdb: marshalling snapshot: %w", err)
	}

	item := map[string]types.AttributeValue{
		dynamoAttrPK:         &types.AttributeValueMemberS{Value: dynamoCheckpointKey},
		dynamoAttrSchemaVer:  &types.AttributeValueMemberN{Value: strconv.Itoa(manifestSchemaVersion)},
		dynamoAttrCheckpoint: &types.AttributeValueMemberS{Value: fmt.Sprintf("%x", root[:8])},
		dynamoAttrRoot:       &types.AttributeValueMemberB{Value: root[:]},
		dynamoAttrVersion:    &types.AttributeValueMemberN{Value: strconv.FormatUint(ver, 10)},
		dynamoAttrSnapshot:   &types.AttributeValueMemberB{Value: blob},
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: dynamodb checkpoint put: %v", amdberrors.ErrDurabilityFailure, err)
	}
	return nil
}

func (d *dynamoStore) Load(ctx context.Context) ([]Record, *Checkpoint, error) {
	ckpt, err := d.loadCheckpoint(ctx)
	if err != nil {
		return nil, nil, err
	}

	var sinceVersion uint64
	if ckpt != nil {
		sinceVersion = ckpt.Version
	}

	records, err := d.scanTail(ctx, sinceVersion)
	if err != nil {
		return nil, nil, err
	}
	return records, ckpt, nil
}

func (d *dynamoStore) loadCheckpoint(ctx context.Context) (*Checkpoint, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			dynamoAttrPK: &types.AttributeValueMemberS{Value: dynamoCheckpointKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("amdb: dynamodb get checkpoint: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	root, ok := out.Item[dynamoAttrRoot].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("%w: checkpoint item missing root attribute", amdberrors.ErrCorruption)
	}
	verAttr, ok := out.Item[dynamoAttrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("%w: checkpoint item missing version attribute", amdberrors.ErrCorruption)
	}
	ver, err := strconv.ParseUint(verAttr.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint version not numeric: %v", amdberrors.ErrCorruption, err)
	}

	var snapshot []SnapshotEntry
	if blob, ok := out.Item[dynamoAttrSnapshot].(*types.AttributeValueMemberB); ok {
		if err := msgpack.Unmarshal(blob.Value, &snapshot); err != nil {
			return nil, fmt.Errorf("%w: decoding checkpoint snapshot: %v", amdberrors.ErrCorruption, err)
		}
	}

	idAttr, _ := out.Item[dynamoAttrCheckpoint].(*types.AttributeValueMemberS)
	checkpointID := ""
	if idAttr != nil {
		checkpointID = idAttr.Value
	}

	return &Checkpoint{
		SchemaVersion: manifestSchemaVersion,
		CheckpointID:  checkpointID,
		Root:          root.Value,
		Version:       ver,
		Snapshot:      snapshot,
	}, nil
}

// scanTail returns every record item whose version exceeds sinceVersion.
// DynamoDB has no native cross-partition ordering index here, so this is a
// full table scan with a server-side filter; bounded by the reference
// deployment sizes this backend targets.
func (d *dynamoStore) scanTail(ctx context.Context, sinceVersion uint64) ([]Record, error) {
	var records []Record
	var lastKey map[string]types.AttributeValue

	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(d.table),
			FilterExpression:     aws.String("begins_with(#pk, :prefix) AND #ver > :since"),
			ExpressionAttributeNames: map[string]string{
				"#pk":  dynamoAttrPK,
				"#ver": dynamoAttrVersion,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: dynamoRecordPrefix},
				":since":  &types.AttributeValueMemberN{Value: strconv.FormatUint(sinceVersion, 10)},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("amdb: dynamodb scan: %w", err)
		}

		for _, item := range out.Items {
			rec, err := recordFromItem(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		lastKey = out.LastEvaluatedKey
	}

	return records, nil
}

func recordFromItem(item map[string]types.AttributeValue) (Record, error) {
	pk, ok := item[dynamoAttrPK].(*types.AttributeValueMemberS)
	if !ok {
		return Record{}, fmt.Errorf("%w: record item missing pk attribute", amdberrors.ErrCorruption)
	}
	key := strings.TrimPrefix(pk.Value, dynamoRecordPrefix)

	value, _ := item[dynamoAttrValue].(*types.AttributeValueMemberB)
	verAttr, ok := item[dynamoAttrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return Record{}, fmt.Errorf("%w: record item missing version attribute", amdberrors.ErrCorruption)
	}
	ver, err := strconv.ParseUint(verAttr.Value, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: record version not numeric: %v", amdberrors.ErrCorruption, err)
	}
	tombstone, _ := item[dynamoAttrTombstone].(*types.AttributeValueMemberBOOL)

	var valBytes []byte
	if value != nil {
		valBytes = value.Value
	}
	var isTombstone bool
	if tombstone != nil {
		isTombstone = tombstone.Value
	}

	return Record{
		Key:       []byte(key),
		Value:     valBytes,
		Version:   ver,
		Tombstone: isTombstone,
	}, nil
}
