package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jukebox/core/notify"
	"jukebox/logger"
	"jukebox/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrSlotTaken 另一条记录已占用播放位（playing/paused）
var ErrSlotTaken = errors.New("another entry is already current")

const orderClause = "priority ASC, created_at ASC, id ASC"

// Guard 条件更新/删除的前置条件。零值字段不参与判断。
type Guard struct {
	ID       string
	Revision *int64
	Statuses []model.TrackStatus
}

// Revision returns a pointer for Guard.Revision.
func Revision(r int64) *int64 {
	return &r
}

// TrackStore 点歌队列存储。所有状态迁移都是单条条件 SQL，
// 多个进程并发修改时由数据库保证原子性；每次提交成功后发布变更事件。
type TrackStore struct {
	db  *gorm.DB
	pub notify.Publisher
	now func() time.Time
}

// NewTrackStore 创建队列存储，pub 可以为 nil
func NewTrackStore(db *gorm.DB, pub notify.Publisher) *TrackStore {
	return &TrackStore{
		db:  db,
		pub: pub,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for createdAt and event timestamps.
func (s *TrackStore) WithClock(now func() time.Time) *TrackStore {
	s.now = now
	return s
}

// Now returns the store clock.
func (s *TrackStore) Now() time.Time {
	return s.now()
}

// AutoMigrate 创建/更新 tracklist 表
func (s *TrackStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.TrackEntry{}); err != nil {
		return fmt.Errorf("failed to migrate tracklist: %w", err)
	}
	return nil
}

func (s *TrackStore) publish(ctx context.Context, ev notify.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		// 推送是尽力而为，不影响已提交的变更
		logger.Warn("failed to publish change event",
			logger.ErrorField(err),
			logger.String("operationType", string(ev.OperationType)),
			logger.EntryID(ev.SongID))
	}
}

// Insert 插入一条排队记录。若同一 songId 已有在队记录，返回该记录且 existing=true。
func (s *TrackStore) Insert(ctx context.Context, e *model.TrackEntry) (*model.TrackEntry, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		entry := *e
		entry.ID = ""
		entry.Status = model.StatusQueued
		entry.CreatedAt = s.now()
		entry.PlayedAt = nil
		entry.PausedAt = nil
		entry.ResumedAt = nil
		entry.Revision = 0
		entry.CurrentSlot = nil
		entry.LiveSongKey = model.LiveKeyFor(entry.SongID)

		err := s.db.WithContext(ctx).Create(&entry).Error
		if err == nil {
			s.publish(ctx, notify.NewInsertEvent(&entry, notify.ActionEnqueue, s.now()))
			return &entry, false, nil
		}
		if !IsDuplicateKey(err) || entry.SongID == "" {
			return nil, false, fmt.Errorf("failed to insert tracklist entry: %w", err)
		}

		existing, findErr := s.FindLiveBySong(ctx, entry.SongID)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			return existing, true, nil
		}
		// 冲突的记录刚被删除，重试插入
	}
	return nil, false, fmt.Errorf("failed to insert tracklist entry: song %q kept conflicting", e.SongID)
}

// Get 根据ID获取记录，不存在时返回 nil, nil
func (s *TrackStore) Get(ctx context.Context, id string) (*model.TrackEntry, error) {
	var entry model.TrackEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tracklist entry: %w", err)
	}
	return &entry, nil
}

// FindLiveBySong 查找持有 songId 的在队记录
func (s *TrackStore) FindLiveBySong(ctx context.Context, songID string) (*model.TrackEntry, error) {
	var entry model.TrackEntry
	err := s.db.WithContext(ctx).Where("live_song_key = ?", songID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entry by song: %w", err)
	}
	return &entry, nil
}

// List 按 (priority, createdAt) 排序返回全部记录
func (s *TrackStore) List(ctx context.Context) ([]*model.TrackEntry, error) {
	var entries []*model.TrackEntry
	if err := s.db.WithContext(ctx).Order(orderClause).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracklist: %w", err)
	}
	return entries, nil
}

// FindByStatus 返回该状态下排序最靠前的一条，没有时返回 nil, nil
func (s *TrackStore) FindByStatus(ctx context.Context, status model.TrackStatus) (*model.TrackEntry, error) {
	var entry model.TrackEntry
	err := s.db.WithContext(ctx).Where("status = ?", status).Order(orderClause).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find %s entry: %w", status, err)
	}
	return &entry, nil
}

// FirstPlayable 返回下一首可播放的排队记录（主控已确认）
func (s *TrackStore) FirstPlayable(ctx context.Context) (*model.TrackEntry, error) {
	var entry model.TrackEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND exists_at_master = ?", model.StatusQueued, true).
		Order(orderClause).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find next playable entry: %w", err)
	}
	return &entry, nil
}

// Promote 将一条已确认的排队记录切换为 playing 并占用播放位。
// 记录已不处于可播放的排队状态时返回 nil, nil；播放位被占用时返回 ErrSlotTaken。
func (s *TrackStore) Promote(ctx context.Context, id string, action notify.Action) (*model.TrackEntry, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.TrackEntry{}).
		Where("id = ? AND status = ? AND exists_at_master = ?", id, model.StatusQueued, true).
		Updates(map[string]interface{}{
			"status":       model.StatusPlaying,
			"played_at":    now,
			"paused_at":    nil,
			"resumed_at":   nil,
			"current_slot": model.CurrentSlotMarker(),
			"revision":     gorm.Expr("revision + 1"),
		})
	if res.Error != nil {
		if IsDuplicateKey(res.Error) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to promote entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.reloadAndPublish(ctx, id, action)
}

// CompareAndUpdate 在满足 guard 时应用 updates，并把 revision +1。
// 未命中（记录不存在或已被并发修改）时返回 nil, nil。
func (s *TrackStore) CompareAndUpdate(ctx context.Context, guard Guard, updates map[string]interface{}, action notify.Action) (*model.TrackEntry, error) {
	values := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["revision"] = gorm.Expr("revision + 1")

	res := s.guarded(ctx, guard).Model(&model.TrackEntry{}).Updates(values)
	if res.Error != nil {
		if IsDuplicateKey(res.Error) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to update entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.reloadAndPublish(ctx, guard.ID, action)
}

// DeleteGuarded 在满足 guard 时删除记录，返回是否删除成功
func (s *TrackStore) DeleteGuarded(ctx context.Context, guard Guard, action notify.Action) (bool, error) {
	res := s.guarded(ctx, guard).Delete(&model.TrackEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.publish(ctx, notify.NewDeleteEvent(guard.ID, action, s.now()))
	return true, nil
}

// ClearAll 清空队列，返回删除条数
func (s *TrackStore) ClearAll(ctx context.Context) (int64, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.TrackEntry{}).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to list entries to clear: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.TrackEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear tracklist: %w", res.Error)
	}
	for _, id := range ids {
		s.publish(ctx, notify.NewDeleteEvent(id, notify.ActionClear, s.now()))
	}
	logger.Info("tracklist cleared", logger.Int64("removed", res.RowsAffected))
	return res.RowsAffected, nil
}

// CountByStatus 按状态统计条数
func (s *TrackStore) CountByStatus(ctx context.Context) (map[model.TrackStatus]int64, error) {
	var rows []struct {
		Status model.TrackStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&model.TrackEntry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tracklist by status: %w", err)
	}

	counts := make(map[model.TrackStatus]int64, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *TrackStore) guarded(ctx context.Context, guard Guard) *gorm.DB {
	q := s.db.WithContext(ctx).Where("id = ?", guard.ID)
	if guard.Revision != nil {
		q = q.Where("revision = ?", *guard.Revision)
	}
	if len(guard.Statuses) > 0 {
		q = q.Where("status IN ?", guard.Statuses)
	}
	return q
}

func (s *TrackStore) reloadAndPublish(ctx context.Context, id string, action notify.Action) (*model.TrackEntry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		// 更新后立即被其他进程删除
		return nil, nil
	}
	s.publish(ctx, notify.NewUpdateEvent(entry, action, s.now()))
	return entry, nil
}

// IsDuplicateKey 判断是否违反唯一索引（MySQL 1062 / SQLite UNIQUE constraint）
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
