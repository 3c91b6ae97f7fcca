package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Outcome 标签与 attest 中的一致；journal 只按字符串存储
const (
	outcomeUnknown = "UNKNOWN"
	outcomeSealed  = "SEALED"
)

// Entry 代表一次 upload 尝试
type Entry struct {
	Invocation string    `json:"invocation"`
	Name       string    `json:"name"`
	Path       string    `json:"path,omitempty"`
	Digest     string    `json:"digest"`
	Address    string    `json:"address,omitempty"` // 内容存储地址
	TxID       string    `json:"tx_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Warning    string    `json:"warning,omitempty"` // 非致命的存储失败
	At         time.Time `json:"at"`

	// ResolvedAt 由 status 命令填写：UNKNOWN 后来被确认或确定丢失
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Pending 判断这条记录是否还需要去账本查询最终结果
func (e Entry) Pending() bool {
	return e.Outcome == outcomeUnknown && e.TxID != "" && e.ResolvedAt == nil
}

// Journal 是本地的上传记录，只追加
// 账本才是真相来源，这里只是为了之后能找回 UNKNOWN 交易
type Journal struct {
	path    string
	Entries []Entry `json:"entries"`
	mu      sync.RWMutex
}

// Open 加载或创建一个 Journal
func Open(path string) (*Journal, error) {
	j := &Journal{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, j); err != nil {
			return nil, fmt.Errorf("corrupted journal file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return j, nil
}

// Path 返回物理文件路径
func (j *Journal) Path() string { return j.path }

// Append 追加一条记录
func (j *Journal) Append(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Entries = append(j.Entries, e)
}

// Snapshot 返回全部记录的副本，最早的在前
func (j *Journal) Snapshot() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.Entries)
}

// Pending 返回仍处于 UNKNOWN 的记录
func (j *Journal) Pending() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Entry
	for _, e := range j.Entries {
		if e.Pending() {
			out = append(out, e)
		}
	}
	return out
}

// LatestAddress 返回 name 最近一次成功上链的内容存储地址
// 被拒绝或未确认的上传不算：它们的内容不一定是账本上的那一份
func (j *Journal) LatestAddress(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := len(j.Entries) - 1; i >= 0; i-- {
		e := j.Entries[i]
		if e.Name == name && e.Outcome == outcomeSealed && e.Address != "" {
			return e.Address, true
		}
	}
	return "", false
}

// Resolve 把某笔交易的所有 UNKNOWN 记录更新为最终结论
// 返回被更新的条数
func (j *Journal) Resolve(txID, outcome string, at time.Time) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	for i := range j.Entries {
		e := &j.Entries[i]
		if e.TxID != txID || !e.Pending() {
			continue
		}
		e.Outcome = outcome
		ts := at.UTC()
		e.ResolvedAt = &ts
		n++
	}
	return n
}

// Save 原子地持久化到磁盘 (临时文件 + rename)
func (j *Journal) Save() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".journal-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}
