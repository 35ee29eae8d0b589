package redisdb

import (
	"context"
	"fmt"

	domainrag "docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

const mappingPrefix = "drive_mapping:"

// StoreDriveMapping 记录云盘资源与文档的关联
func (s *Store) StoreDriveMapping(ctx context.Context, m *domainrag.DriveMapping) error {
	if m.DriveID == "" || m.DocID == "" {
		return fmt.Errorf("drive mapping requires drive_id and doc_id")
	}

	key := mappingPrefix + m.DriveID
	fields := map[string]interface{}{
		"drive_id":      m.DriveID,
		"doc_id":        m.DocID,
		"name":          m.Name,
		"mime_type":     m.MimeType,
		"created_at":    m.CreatedAt,
		"modified_time": m.ModifiedTime,
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("store drive mapping %s: %w", m.DriveID, err)
	}

	applog.Info("[Store] Stored drive mapping", "drive_id", m.DriveID, "doc_id", m.DocID)
	return nil
}

// DriveMapping 按云盘资源 ID 查询映射，不存在返回 nil
func (s *Store) DriveMapping(ctx context.Context, driveID string) (*domainrag.DriveMapping, error) {
	fields, err := s.rdb.HGetAll(ctx, mappingPrefix+driveID).Result()
	if err != nil {
		return nil, fmt.Errorf("get drive mapping %s: %w", driveID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return &domainrag.DriveMapping{
		DriveID:      fields["drive_id"],
		DocID:        fields["doc_id"],
		Name:         fields["name"],
		MimeType:     fields["mime_type"],
		CreatedAt:    fields["created_at"],
		ModifiedTime: fields["modified_time"],
	}, nil
}

// DeleteDriveMapping 删除云盘映射
func (s *Store) DeleteDriveMapping(ctx context.Context, driveID string) error {
	if err := s.rdb.Del(ctx, mappingPrefix+driveID).Err(); err != nil {
		return fmt.Errorf("delete drive mapping %s: %w", driveID, err)
	}
	return nil
}
