package debug

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitzhangjie/retrodbg/pkg/breakpoint"
	"github.com/hitzhangjie/retrodbg/pkg/config"
	"github.com/hitzhangjie/retrodbg/pkg/logger"
	"github.com/hitzhangjie/retrodbg/pkg/symbol"
	"github.com/hitzhangjie/retrodbg/pkg/target"
)

var (
	CurrentProject *Project
)

var errNotConnected = errors.New("未连接调试器, 请先执行 connect")

// Project 当前打开的工程
type Project struct {
	Dir     string
	Config  config.Platform
	Program *symbol.Program
	Catalog *breakpoint.Catalog

	mu      sync.Mutex
	monitor *target.Monitor

	unsubscribe func()
}

// OpenProject 打开工程目录dir, 加载断点文件
func OpenProject(cfg config.Platform, dir string) (*Project, error) {
	prog := symbol.NewProgram(cfg, dir)

	file := cfg.BreakpointsFile
	if file != "" {
		file = join(dir, file)
	}
	cat, err := breakpoint.Open(cfg, file, prog)
	if err != nil {
		return nil, fmt.Errorf("load breakpoints: %v", err)
	}

	p := &Project{
		Dir:     dir,
		Config:  cfg,
		Program: prog,
		Catalog: cat,
	}
	p.unsubscribe = cat.Subscribe(p.report)
	return p, nil
}

// report prints what the user did not ask for, such as hits. It runs on
// the catalog goroutine.
func (p *Project) report(ev breakpoint.Event) {
	bp := ev.Breakpoint
	switch ev.Kind {
	case breakpoint.Hit:
		if bp.IsHit {
			fmt.Printf("\nbreakpoint %d hit: %s (hits: %d)\n", bp.ID, bp.Bind, bp.HitCount)
		}
	case breakpoint.Updated:
		if bp.Error != breakpoint.NoError {
			fmt.Fprintf(os.Stderr, "breakpoint %d: %s: %s\n", bp.ID, bp.Error, bp.ErrorText)
		}
	}
}

// LoadSymbols 加载调试符号, 已连接时重新布置所有断点
func (p *Project) LoadSymbols(ctx context.Context, path string) (int, error) {
	n, err := p.Program.LoadFile(path)
	if err != nil {
		return 0, err
	}
	p.Catalog.SetDebugInfo(p.Program)

	if p.Monitor() != nil {
		if err := p.Catalog.DisarmAll(ctx); err != nil {
			return n, err
		}
		if _, err := p.Catalog.RearmAll(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Monitor 当前的调试器连接, 未连接时返回nil
func (p *Project) Monitor() *target.Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.monitor != nil && !p.monitor.Connected() {
		return nil
	}
	return p.monitor
}

// Connect 连接调试器并布置所有断点
func (p *Project) Connect(ctx context.Context, addr string) (int, error) {
	if p.Monitor() != nil {
		return 0, errors.New("已连接调试器")
	}

	m, err := target.Dial(ctx, addr, p.Config.MonitorTimeout)
	if err != nil {
		return 0, err
	}

	banks, err := m.Banks(ctx)
	if err != nil {
		logger.Logf("project", "banks: %v", err)
	} else {
		p.Program.SetBanks(banks)
	}

	p.mu.Lock()
	p.monitor = m
	p.mu.Unlock()

	// forget checkpoints of an earlier connection before arming
	p.Catalog.Disconnected()
	p.Catalog.SetSession(m)
	go p.pump(m)

	return p.Catalog.RearmAll(ctx)
}

// pump forwards monitor events to the catalog until the connection ends.
func (p *Project) pump(m *target.Monitor) {
	for ev := range m.Events() {
		switch ev.Kind {
		case target.Stopped:
			if file, line, ok := p.Program.AddressToLine(ev.PC); ok {
				fmt.Printf("\nstopped at $%04x %s:%d\n", ev.PC, file, line+1)
			} else {
				fmt.Printf("\nstopped at $%04x\n", ev.PC)
			}
		case target.Disconnected:
			p.mu.Lock()
			current := p.monitor == m
			p.mu.Unlock()
			if !current {
				// closed by Disconnect, maybe already replaced by a new connection
				continue
			}
			fmt.Println("\n调试器连接已断开")
		}
		p.Catalog.HandleEvent(ev)
	}

	p.mu.Lock()
	if p.monitor == m {
		p.monitor = nil
	}
	p.mu.Unlock()
}

// Disconnect 删除所有断点对应的checkpoint并断开连接
func (p *Project) Disconnect(ctx context.Context) error {
	m := p.Monitor()
	if m == nil {
		return errNotConnected
	}

	err := p.Catalog.DisarmAll(ctx)
	p.Catalog.Disconnected()
	p.Program.SetBanks(nil)

	p.mu.Lock()
	p.monitor = nil
	p.mu.Unlock()

	if cerr := m.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close 断开调试器并保存断点
func (p *Project) Close(ctx context.Context) error {
	if p.Monitor() != nil {
		if err := p.Disconnect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "disconnect: %v\n", err)
		}
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	return p.Catalog.Close(ctx)
}

func join(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}
