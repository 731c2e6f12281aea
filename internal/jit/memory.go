// memory.go - 可执行内存管理
//
// JIT 编译生成的机器码需要存储在可执行内存中才能被 CPU 执行；这一页的
// 分配现在统一交给 internal/codecache 管理（opt 区，LONG 生命周期，
// 追加式区域，永不回收），而不是每个函数各自调用平台相关的 mmap。

package jit

import (
	"fmt"

	"github.com/novavm/nova/internal/codecache"
)

// namedMethod adapts a bare function name to codecache.TargetMethod so the
// code cache can be asked for a bundle without the JIT having built a
// richer method descriptor yet.
type namedMethod string

func (n namedMethod) MethodName() string { return string(n) }

// CompiledFunc is the result of compiling one function: its machine code
// plus the codecache bundle backing it.
type CompiledFunc struct {
	Code   []byte
	bundle *codecache.Bundle
}

func (c *CompiledFunc) EntryPoint() uintptr {
	return c.bundle.CodeStart()
}

// NewCompiledFunc wraps a codecache bundle as a CompiledFunc so callers
// outside this package (cmd/nova's driver, FunctionTable.SetCompiled
// callers) can register code allocated directly through codecache.Global.
func NewCompiledFunc(bundle *codecache.Bundle) *CompiledFunc {
	return &CompiledFunc{Code: bundle.Code(), bundle: bundle}
}

// CodeCache 代码缓存
// 管理已编译函数的按名查找，底层存储全部来自 codecache 的 opt 区。
type CodeCache struct {
	maxSize  int                      // 最大缓存大小
	usedSize int                      // 已使用大小
	entries  map[string]*CompiledFunc // 函数名 -> 编译结果
}

// NewCodeCache 创建代码缓存
func NewCodeCache(maxSize int) *CodeCache {
	return &CodeCache{
		maxSize: maxSize,
		entries: make(map[string]*CompiledFunc),
	}
}

// Get 获取已编译的函数
func (cc *CodeCache) Get(name string) *CompiledFunc {
	return cc.entries[name]
}

// Put 存储编译结果
func (cc *CodeCache) Put(name string, compiled *CompiledFunc) {
	// 检查是否超过容量
	if cc.usedSize+len(compiled.Code) > cc.maxSize {
		// 简单策略：清除所有缓存
		cc.Clear()
	}

	cc.entries[name] = compiled
	cc.usedSize += len(compiled.Code)
}

// Clear 清除按名索引，不释放任何代码区内存：opt 区的 bundle 从不回收，
// baseline 区的 bundle 只在 codecache 淘汰时回收。
func (cc *CodeCache) Clear() {
	cc.entries = make(map[string]*CompiledFunc)
	cc.usedSize = 0
}

// AllocateExecutable 从全局代码缓存的 opt 区分配可执行内存。
//
// 调用前必须已经完成 codecache.Init，否则报错——JIT 不再有独立的直接
// mmap 回退路径。
func (cc *CodeCache) AllocateExecutable(size int) ([]byte, error) {
	global := codecache.Global()
	if global == nil {
		return nil, fmt.Errorf("jit: code cache not initialized, call codecache.Init first")
	}
	bundle, err := global.Allocate(codecache.BundleLayout{CodeLen: size}, namedMethod("jit-allocated"), false, codecache.LifespanLong)
	if err != nil {
		return nil, err
	}
	return bundle.Code(), nil
}
