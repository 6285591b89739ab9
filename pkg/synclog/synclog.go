// Package synclog 构造同步日志 (只追加) 中的操作记录。
//
// 每一次 create / link 都会伴随一条或多条 SyncOperation，
// 它们与业务数据在同一个事务中落库，其他副本按时间戳回放即可收敛。
package synclog

import (
	"encoding/json"
	"sync"
	"time"

	"fileident/pkg/meta"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// 被同步的模型名
const (
	ModelObject   = "object"
	ModelFilePath = "file_path"
)

// Manager 为当前进程实例生成操作记录
// 时间戳是单调递增的：同一纳秒内的多次调用也不会重复
type Manager struct {
	instance string

	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewManager 创建 Manager，instance 为空时随机生成
func NewManager(instance string) *Manager {
	if instance == "" {
		instance = uuid.NewString()
	}
	return &Manager{instance: instance, now: time.Now}
}

// Instance 返回实例 ID
func (m *Manager) Instance() string {
	return m.instance
}

// tick 返回下一个单调时间戳
func (m *Manager) tick() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now().UnixNano()
	if ts <= m.last {
		ts = m.last + 1
	}
	m.last = ts
	return ts
}

// SharedCreate 记录一次创建，values 是新记录的字段
func (m *Manager) SharedCreate(model, recordPubID string, values map[string]any) meta.SyncOperation {
	return m.op(model, recordPubID, "c", values)
}

// SharedUpdate 记录一次单字段更新
func (m *Manager) SharedUpdate(model, recordPubID, field string, value any) meta.SyncOperation {
	return m.op(model, recordPubID, "u:"+field, value)
}

func (m *Manager) op(model, recordPubID, kind string, payload any) meta.SyncOperation {
	data, err := json.Marshal(payload)
	if err != nil {
		// payload 只会是基础类型和 map，序列化失败说明调用方传了不该传的东西
		panic("synclog: unserializable payload: " + err.Error())
	}

	return meta.SyncOperation{
		PubID:     uuid.NewString(),
		Instance:  m.instance,
		Timestamp: m.tick(),
		Model:     model,
		RecordID:  recordPubID,
		Kind:      kind,
		Data:      datatypes.JSON(data),
	}
}
