package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lisuiheng/soundstream-go/audio"
)

// 录音权限模式
const (
	PermissionGrant  = "grant"
	PermissionDeny   = "deny"
	PermissionPrompt = "prompt"
)

// StaticPermission 固定的权限结果，用于无人值守运行
type StaticPermission bool

var _ audio.PermissionRequester = StaticPermission(false)

func (p StaticPermission) HasPermission() bool { return bool(p) }

func (p StaticPermission) RequestPermission(resume func(bool)) { resume(bool(p)) }

// PromptPermission 在终端上询问用户是否允许使用麦克风。
// 一旦授权，本进程内不再询问。
type PromptPermission struct {
	// promptMu 串行化并发的询问
	promptMu sync.Mutex
	in       *bufio.Reader
	out      io.Writer

	mu      sync.Mutex
	granted bool
}

var _ audio.PermissionRequester = (*PromptPermission)(nil)

func NewPromptPermission(in io.Reader, out io.Writer) *PromptPermission {
	return &PromptPermission{in: bufio.NewReader(in), out: out}
}

func (p *PromptPermission) HasPermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

// RequestPermission 在独立协程中等待用户输入，读取失败视为拒绝
func (p *PromptPermission) RequestPermission(resume func(bool)) {
	go func() {
		p.promptMu.Lock()
		fmt.Fprint(p.out, "Allow microphone access? [y/N]: ")
		line, err := p.in.ReadString('\n')
		p.promptMu.Unlock()

		answer := strings.ToLower(strings.TrimSpace(line))
		granted := (err == nil || err == io.EOF) && (answer == "y" || answer == "yes")
		if granted {
			p.mu.Lock()
			p.granted = true
			p.mu.Unlock()
		}

		resume(granted)
	}()
}

// NewPermission 按模式创建权限提供方
func NewPermission(mode string, in io.Reader, out io.Writer) (audio.PermissionRequester, error) {
	switch mode {
	case "", PermissionGrant:
		return StaticPermission(true), nil
	case PermissionDeny:
		return StaticPermission(false), nil
	case PermissionPrompt:
		return NewPromptPermission(in, out), nil
	default:
		return nil, fmt.Errorf("%w: permission mode %q", ErrInvalidConfig, mode)
	}
}
