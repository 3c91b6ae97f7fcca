package attest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"ledgerseal/pkg/core"
	"ledgerseal/pkg/ignore"
)

// Target 是一个待处理的 (文件, 账本键) 对
type Target struct {
	Path string
	Name string
}

// Targets 展开命令行参数
// 文件: 账本键默认为文件名 (basename)，name 非空时覆盖
// 目录: 递归展开，跳过 .sealignore 与默认规则；键为相对路径，name 非空时作为前缀
func Targets(p, name string) ([]Target, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIOFailure, err)
	}

	if !info.IsDir() {
		if name == "" {
			name = filepath.Base(p)
		}
		return []Target{{Path: p, Name: name}}, nil
	}

	m, err := ignore.NewMatcher(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrIOFailure, ignore.FileName, err)
	}
	files, err := m.Files(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIOFailure, err)
	}

	out := make([]Target, 0, len(files))
	for _, rel := range files {
		key := rel
		if name != "" {
			key = path.Join(name, rel)
		}
		out = append(out, Target{Path: filepath.Join(p, filepath.FromSlash(rel)), Name: key})
	}
	return out, nil
}
