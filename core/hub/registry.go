package hub

import (
	"sync"
)

// Role 客户端自报的身份
type Role string

const (
	RoleUnknown Role = "unknown"
	RoleMaster  Role = "master"
	RoleHub     Role = "hub"
	RoleClient  Role = "client"
)

// Privileged reports whether the role competes for the single controller slot.
func (r Role) Privileged() bool {
	return r == RoleMaster || r == RoleHub
}

// Registry 当前在线连接集合，以及唯一有效的主控连接。
// 进程重启后从空开始重建，不做持久化。
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	masterID string
}

// NewRegistry 创建空的连接表
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add 加入连接
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Remove 移除连接。removed 表示连接此前在表中，wasMaster 表示它是当前主控。
func (r *Registry) Remove(id string) (removed, wasMaster bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return false, false
	}
	delete(r.clients, id)
	if r.masterID == id {
		r.masterID = ""
		return true, true
	}
	return true, false
}

// Get 根据连接ID查找
func (r *Registry) Get(id string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[id]
}

// Clients 返回连接快照，调用方可以在不持锁的情况下遍历
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	return list
}

// Len 在线连接数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// MasterID 当前主控连接ID，没有时为空
func (r *Registry) MasterID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.masterID
}

// HasMaster 是否有主控在线
func (r *Registry) HasMaster() bool {
	return r.MasterID() != ""
}

// SetRole 记录连接身份。声明 master/hub 的连接会顶替之前的主控，
// 被顶替的连接降级为 unknown 并返回；连接不存在时 ok=false。
func (r *Registry) SetRole(id string, role Role) (superseded *Client, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[id]
	if !exists {
		return nil, false
	}
	c.setRole(role)

	switch {
	case role.Privileged():
		if r.masterID != "" && r.masterID != id {
			if old := r.clients[r.masterID]; old != nil {
				old.setRole(RoleUnknown)
				superseded = old
			}
		}
		r.masterID = id
	case r.masterID == id:
		// 主控自行降级
		r.masterID = ""
	}
	return superseded, true
}
