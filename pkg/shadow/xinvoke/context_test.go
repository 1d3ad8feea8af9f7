package xinvoke

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot(t *testing.T) {
	c := NewRoot()
	assert.Equal(t, RootInvokeID, c.InvokeID())
	assert.Len(t, c.TraceID(), 32)
	assert.False(t, c.IsClusterTest())
	assert.True(t, c.IsEntrance())
	assert.Nil(t, c.Parent())

	c2 := NewRoot(WithTraceID("t-1"), WithClusterTest(true), WithDebug(true), WithType(InvokeJob))
	assert.Equal(t, "t-1", c2.TraceID())
	assert.True(t, c2.IsClusterTest())
	assert.True(t, c2.IsDebug())
	assert.Equal(t, InvokeJob, c2.Type())
}

func TestNewChild_HierarchicalIDs(t *testing.T) {
	root := NewRoot(WithTraceID("t"))
	c1 := root.NewChild(InvokeRPC)
	c2 := root.NewChild(InvokeDB)
	c11 := c1.NewChild(InvokeCache)

	assert.Equal(t, "0.1", c1.InvokeID())
	assert.Equal(t, "0.2", c2.InvokeID())
	assert.Equal(t, "0.1.1", c11.InvokeID())
	assert.Equal(t, "t", c11.TraceID())
	assert.Same(t, c1, c11.Parent())
	assert.False(t, c11.IsEntrance())
}

func TestNewChild_ConcurrentSequenceUnique(t *testing.T) {
	root := NewRoot()
	const n = 100
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- root.NewChild(InvokeRPC).InvokeID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestClusterTestFlag_Monotonic(t *testing.T) {
	shadow := NewRoot(WithClusterTest(true))
	prod := NewRoot()

	tests := []struct {
		name       string
		parent     *InvokeContext
		classified bool
		want       bool
	}{
		{"shadow parent, prod classification", shadow, false, true},
		{"shadow parent, shadow classification", shadow, true, true},
		{"prod parent, shadow classification", prod, true, true},
		{"prod parent, prod classification", prod, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.parent.NewBoundaryChild(InvokeRPC, tt.classified)
			assert.Equal(t, tt.want, c.IsClusterTest())
			// 非边界子节点永远继承父节点
			assert.Equal(t, tt.want, c.NewChild(InvokeDB).IsClusterTest())
		})
	}

	assert.True(t, shadow.NewChild(InvokeDB).NewChild(InvokeMQ).IsClusterTest())
	assert.False(t, prod.NewChild(InvokeDB).IsClusterTest())
}

func TestFromUpstream(t *testing.T) {
	c := FromUpstream(Upstream{TraceID: "abc", InvokeID: "0.3", ClusterTest: true}, InvokeWebServer)
	assert.Equal(t, "abc", c.TraceID())
	assert.Equal(t, "0.3", c.InvokeID())
	assert.True(t, c.IsClusterTest())
	assert.Equal(t, "0.3.1", c.NewChild(InvokeDB).InvokeID())

	empty := FromUpstream(Upstream{}, InvokeRPC)
	assert.Equal(t, RootInvokeID, empty.InvokeID())
	assert.NotEmpty(t, empty.TraceID())
}

func TestInvokeContext_ScratchAndAttrs(t *testing.T) {
	c := NewRoot()
	require.NoError(t, c.Update(func(s *Scratch) {
		s.ServiceName = "OrderService"
		s.MethodName = "create"
		s.RequestSize = 42
	}))
	require.NoError(t, c.SetAttr("tenant", "t1"))

	s := c.Scratch()
	assert.Equal(t, "OrderService", s.ServiceName)
	assert.Equal(t, int64(42), s.RequestSize)
	v, ok := c.Attr("tenant")
	assert.True(t, ok)
	assert.Equal(t, "t1", v)

	attrs := c.Attrs()
	attrs["tenant"] = "mutated"
	v, _ = c.Attr("tenant")
	assert.Equal(t, "t1", v)

	c.destroy()
	assert.ErrorIs(t, c.Update(func(*Scratch) {}), ErrContextDestroyed)
	assert.ErrorIs(t, c.SetAttr("k", "v"), ErrContextDestroyed)
}

func TestInvokeType_String(t *testing.T) {
	assert.Equal(t, "web-server", InvokeWebServer.String())
	assert.Equal(t, "mq", InvokeMQ.String())
	assert.Equal(t, "unknown", InvokeType(99).String())
	assert.Equal(t, "unknown", InvokeType(-1).String())
	assert.True(t, InvokeRPC.IsBoundary())
	assert.False(t, InvokeDB.IsBoundary())
}
