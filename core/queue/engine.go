// Package queue 点歌队列状态机：排序、进度计算、暂停/恢复/切歌以及播放结束后的自动续播。
//
// Engine 不持有任何进程内锁。每一次状态迁移都落到存储层的一条条件更新上，
// 多个进程（API、sweeper、主控）同时操作同一个队列时由数据库裁决先后。
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jukebox/core/notify"
	"jukebox/logger"
	"jukebox/model"
	"jukebox/repository"
)

// 条件更新失败后的最大重试次数
const maxAttempts = 5

// Store 队列引擎依赖的存储操作，由 repository.TrackStore 实现
type Store interface {
	Now() time.Time
	Insert(ctx context.Context, e *model.TrackEntry) (*model.TrackEntry, bool, error)
	Get(ctx context.Context, id string) (*model.TrackEntry, error)
	List(ctx context.Context) ([]*model.TrackEntry, error)
	FindByStatus(ctx context.Context, status model.TrackStatus) (*model.TrackEntry, error)
	FirstPlayable(ctx context.Context) (*model.TrackEntry, error)
	Promote(ctx context.Context, id string, action notify.Action) (*model.TrackEntry, error)
	CompareAndUpdate(ctx context.Context, guard repository.Guard, updates map[string]interface{}, action notify.Action) (*model.TrackEntry, error)
	DeleteGuarded(ctx context.Context, guard repository.Guard, action notify.Action) (bool, error)
	CountByStatus(ctx context.Context) (map[model.TrackStatus]int64, error)
}

// EnqueueRequest 点歌请求，零值字段使用默认值
type EnqueueRequest struct {
	SongID      string  `json:"songId"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	Duration    Seconds `json:"duration"`
	Priority    int     `json:"priority"`
	RequestedBy string  `json:"requestedBy"`
	MasterID    string  `json:"masterId"`
	SlaveID     string  `json:"slaveId"`
	Length      Seconds `json:"length"`
}

// Transition 一次切歌/播放结束的结果
type Transition struct {
	Removed *model.TrackEntry // 被移除的条目
	Next    *model.TrackEntry // 新的当前条目，队列为空时为 nil
}

// StatusReport 队列概况
type StatusReport struct {
	Counts    map[model.TrackStatus]int64 `json:"counts"`
	Total     int                         `json:"total"`
	Current   *EntryView                  `json:"current"`
	Tracklist []EntryView                 `json:"tracklist"`
}

// Engine 队列状态机
type Engine struct {
	store Store
}

// NewEngine 创建队列引擎
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Enqueue 新增一条排队记录。同一 songId 仍在队列中时返回已有记录，existing=true。
func (e *Engine) Enqueue(ctx context.Context, req EnqueueRequest) (*model.TrackEntry, bool, error) {
	entry := &model.TrackEntry{
		SongID:         req.SongID,
		Title:          req.Title,
		Artist:         orDefault(req.Artist, model.DefaultArtist),
		Album:          orDefault(req.Album, model.DefaultAlbum),
		Duration:       int(req.Duration),
		Priority:       req.Priority,
		RequestedBy:    orDefault(req.RequestedBy, model.DefaultRequestedBy),
		MasterID:       orDefault(req.MasterID, model.DefaultControllerID),
		SlaveID:        orDefault(req.SlaveID, model.DefaultControllerID),
		ExistsAtMaster: false,
		Length:         int(req.Length),
	}
	// 负数优先级照常保存，排在所有默认优先级之前
	if entry.Duration <= 0 {
		entry.Duration = model.DefaultDuration
	}
	if entry.Length < 0 {
		entry.Length = 0
	}
	if entry.Priority == 0 {
		entry.Priority = model.DefaultPriority
	}

	created, existing, err := e.store.Insert(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	if existing {
		logger.Info("duplicate request for queued song",
			logger.String("songId", req.SongID),
			logger.EntryID(created.ID))
	} else {
		logger.Info("song added to tracklist",
			logger.EntryID(created.ID),
			logger.String("title", created.Title),
			logger.Int("priority", created.Priority))
	}
	return created, existing, nil
}

// Confirm 主控确认文件存在并上报真实时长。nil 字段保持不变，状态不受影响。
func (e *Engine) Confirm(ctx context.Context, id string, existsAtMaster *bool, length *int) (*model.TrackEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: tracklistId is required", ErrInvalid)
	}
	if length != nil && *length < 0 {
		return nil, fmt.Errorf("%w: length must not be negative", ErrInvalid)
	}

	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updates := map[string]interface{}{}
	if existsAtMaster != nil {
		updates["exists_at_master"] = *existsAtMaster
	}
	if length != nil {
		updates["length"] = *length
	}
	if len(updates) == 0 {
		return current, nil
	}

	updated, err := e.store.CompareAndUpdate(ctx, repository.Guard{ID: id}, updates, notify.ActionConfirm)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	logger.Info("entry confirmed by master",
		logger.EntryID(id),
		logger.Bool("existsAtMaster", updated.ExistsAtMaster),
		logger.Int("length", updated.Length))
	return updated, nil
}

// current 返回当前占用播放位的条目（playing 优先，其次 paused）
func (e *Engine) current(ctx context.Context) (*model.TrackEntry, error) {
	entry, err := e.store.FindByStatus(ctx, model.StatusPlaying)
	if err != nil || entry != nil {
		return entry, err
	}
	return e.store.FindByStatus(ctx, model.StatusPaused)
}

// resolve 按显式 ID 或者按状态定位操作目标
func (e *Engine) resolve(ctx context.Context, target string, statuses ...model.TrackStatus) (*model.TrackEntry, error) {
	if target != "" {
		entry, err := e.store.Get(ctx, target)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		for _, st := range statuses {
			if entry.Status == st {
				return entry, nil
			}
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFound, target, entry.Status)
	}

	entry, err := e.store.FindByStatus(ctx, statuses[0])
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: no %s entry", ErrNotFound, statuses[0])
	}
	return entry, nil
}

// Play 主控开始播放。
// 指定 target 时播放该条目，先移除当前播放/暂停的条目；
// 未指定时若已有播放中的条目则直接返回，暂停中的条目会被恢复，否则按排序提升下一首。
func (e *Engine) Play(ctx context.Context, target string) (*model.TrackEntry, error) {
	if target == "" {
		cur, err := e.current(ctx)
		if err != nil {
			return nil, err
		}
		if cur != nil {
			if cur.Status == model.StatusPaused {
				return e.Resume(ctx, cur.ID)
			}
			return cur, nil
		}
		next, err := e.promoteNext(ctx, notify.ActionPlay)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("%w: no playable entry in queue", ErrNotFound)
		}
		return next, nil
	}
	return e.promoteTarget(ctx, target)
}

func (e *Engine) promoteTarget(ctx context.Context, target string) (*model.TrackEntry, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entry, err := e.store.Get(ctx, target)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		switch {
		case entry.Status == model.StatusPlaying:
			return entry, nil
		case entry.Status == model.StatusPaused:
			return e.Resume(ctx, target)
		case entry.Status != model.StatusQueued || !entry.IsPlayable():
			return nil, fmt.Errorf("%w: %s is not playable", ErrNotFound, target)
		}

		promoted, err := e.store.Promote(ctx, target, notify.ActionPlay)
		if errors.Is(err, repository.ErrSlotTaken) {
			// 先停掉当前条目，再重试
			if err := e.removeCurrent(ctx, notify.ActionSkip); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			logger.Info("entry started", logger.EntryID(promoted.ID), logger.String("title", promoted.Title))
			return promoted, nil
		}
	}
	return nil, fmt.Errorf("play %s: %w", target, ErrContention)
}

func (e *Engine) removeCurrent(ctx context.Context, action notify.Action) error {
	cur, err := e.current(ctx)
	if err != nil || cur == nil {
		return err
	}
	_, err = e.store.DeleteGuarded(ctx, repository.Guard{
		ID:       cur.ID,
		Revision: repository.Revision(cur.Revision),
	}, action)
	return err
}

// promoteNext 把排序最靠前的已确认条目切换为 playing。
// 播放位已被其他进程占用时返回那一条；队列中没有可播放条目时返回 nil, nil。
func (e *Engine) promoteNext(ctx context.Context, action notify.Action) (*model.TrackEntry, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := e.store.FirstPlayable(ctx)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}

		promoted, err := e.store.Promote(ctx, candidate.ID, action)
		if errors.Is(err, repository.ErrSlotTaken) {
			cur, curErr := e.current(ctx)
			if curErr != nil {
				return nil, curErr
			}
			if cur != nil {
				return cur, nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			logger.Info("next entry promoted",
				logger.EntryID(promoted.ID),
				logger.String("title", promoted.Title),
				logger.String("action", string(action)))
			return promoted, nil
		}
		// 候选条目刚被其他进程提升或删除
	}
	return nil, fmt.Errorf("promote next: %w", ErrContention)
}

// Pause 暂停 target 或当前播放中的条目
func (e *Engine) Pause(ctx context.Context, target string) (*model.TrackEntry, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entry, err := e.resolve(ctx, target, model.StatusPlaying)
		if err != nil {
			return nil, err
		}

		now := e.store.Now()
		updated, err := e.store.CompareAndUpdate(ctx, repository.Guard{
			ID:       entry.ID,
			Revision: repository.Revision(entry.Revision),
			Statuses: []model.TrackStatus{model.StatusPlaying},
		}, map[string]interface{}{
			"status":    model.StatusPaused,
			"paused_at": now,
		}, notify.ActionPause)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			logger.Info("entry paused", logger.EntryID(updated.ID))
			return updated, nil
		}
	}
	return nil, fmt.Errorf("pause: %w", ErrContention)
}

// Resume 恢复 target 或当前暂停的条目，playedAt 顺延暂停时长，进度不会因为暂停而前进
func (e *Engine) Resume(ctx context.Context, target string) (*model.TrackEntry, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entry, err := e.resolve(ctx, target, model.StatusPaused)
		if err != nil {
			return nil, err
		}

		now := e.store.Now()
		playedAt := now
		if entry.PlayedAt != nil {
			playedAt = *entry.PlayedAt
			if entry.PausedAt != nil && now.After(*entry.PausedAt) {
				playedAt = playedAt.Add(now.Sub(*entry.PausedAt))
			}
		}

		updated, err := e.store.CompareAndUpdate(ctx, repository.Guard{
			ID:       entry.ID,
			Revision: repository.Revision(entry.Revision),
			Statuses: []model.TrackStatus{model.StatusPaused},
		}, map[string]interface{}{
			"status":     model.StatusPlaying,
			"played_at":  playedAt,
			"paused_at":  nil,
			"resumed_at": now,
		}, notify.ActionResume)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			logger.Info("entry resumed", logger.EntryID(updated.ID))
			return updated, nil
		}
	}
	return nil, fmt.Errorf("resume: %w", ErrContention)
}

// Skip 删除 target（playing 或 paused）或当前播放中的条目，并提升下一首
func (e *Engine) Skip(ctx context.Context, target string) (*Transition, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var (
			entry *model.TrackEntry
			err   error
		)
		if target != "" {
			entry, err = e.resolve(ctx, target, model.StatusPlaying, model.StatusPaused)
		} else {
			entry, err = e.resolve(ctx, "", model.StatusPlaying)
		}
		if err != nil {
			return nil, err
		}

		deleted, err := e.store.DeleteGuarded(ctx, repository.Guard{
			ID:       entry.ID,
			Revision: repository.Revision(entry.Revision),
			Statuses: []model.TrackStatus{model.StatusPlaying, model.StatusPaused},
		}, notify.ActionSkip)
		if err != nil {
			return nil, err
		}
		if !deleted {
			continue
		}

		logger.Info("entry skipped", logger.EntryID(entry.ID), logger.String("title", entry.Title))
		next, err := e.promoteNext(ctx, notify.ActionPlay)
		if err != nil {
			return nil, err
		}
		return &Transition{Removed: entry, Next: next}, nil
	}
	return nil, fmt.Errorf("skip: %w", ErrContention)
}

// Sweep 播放中的条目达到时长后删除并提升下一首。
// 没有播放中条目、时长未知或尚未播完时返回 nil, nil；并发 sweep 输掉竞争时同样是空操作。
func (e *Engine) Sweep(ctx context.Context) (*Transition, error) {
	entry, err := e.store.FindByStatus(ctx, model.StatusPlaying)
	if err != nil || entry == nil {
		return nil, err
	}

	length := entry.EffectiveLength()
	if length <= 0 || entry.PlayedAt == nil {
		return nil, nil
	}
	if Elapsed(entry, e.store.Now()) < time.Duration(length)*time.Second {
		return nil, nil
	}

	deleted, err := e.store.DeleteGuarded(ctx, repository.Guard{
		ID:       entry.ID,
		Revision: repository.Revision(entry.Revision),
		Statuses: []model.TrackStatus{model.StatusPlaying},
	}, notify.ActionFinish)
	if err != nil || !deleted {
		return nil, err
	}

	logger.Info("entry finished", logger.EntryID(entry.ID), logger.String("title", entry.Title))
	next, err := e.promoteNext(ctx, notify.ActionPlay)
	if err != nil {
		return nil, err
	}
	return &Transition{Removed: entry, Next: next}, nil
}

// List 按播放顺序返回全部条目，当前条目附带进度
func (e *Engine) List(ctx context.Context) ([]EntryView, error) {
	entries, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := e.store.Now()
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ViewOf(entry, now))
	}
	return views, nil
}

// Status 各状态计数、当前条目和完整列表
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	views, err := e.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Counts: counts, Total: len(views), Tracklist: views}
	for i := range views {
		if views[i].Status.IsCurrent() {
			report.Current = &views[i]
			break
		}
	}
	return report, nil
}
