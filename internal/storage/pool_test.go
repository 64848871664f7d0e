package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	libvirtxml "libvirt.org/go/libvirtxml"
)

func TestManager_CreatePool(t *testing.T) {
	tests := []struct {
		name     string
		poolType PoolType
		wantErr  bool
	}{
		{name: "dir pool", poolType: PoolTypeDir},
		{name: "lvm pool is not created by anvil", poolType: PoolTypeLVM, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockLibvirtClient()
			m := NewManager(client, "", "")

			err := m.CreatePool(context.Background(), "seeds", tt.poolType, "/srv/seeds")
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, client.pools)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, client.pools, "seeds")
		})
	}
}

func TestManager_EnsurePool_Idempotent(t *testing.T) {
	ctx := context.Background()
	client := newMockLibvirtClient()
	m := NewManager(client, "", "")

	require.NoError(t, m.EnsurePool(ctx, "seeds", PoolTypeDir, "/srv/seeds"))
	require.NoError(t, m.EnsurePool(ctx, "seeds", PoolTypeDir, "/srv/seeds"))
	assert.Len(t, client.pools, 1)
}

func TestManager_GetPoolInfo(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMockLibvirtClient(), "", "")
	require.NoError(t, m.CreatePool(ctx, "seeds", PoolTypeDir, "/srv/seeds"))

	info, err := m.GetPoolInfo(ctx, "seeds")
	require.NoError(t, err)
	assert.Equal(t, "seeds", info.Name)
	assert.Equal(t, PoolTypeDir, info.Type)
	assert.Equal(t, "/srv/seeds", info.Path)
	assert.Equal(t, "running", info.State)
	assert.Equal(t, uint64(100<<30), info.Capacity)
	assert.Equal(t, uint64(90<<30), info.Available)
	assert.Equal(t, "30313233-3435-3637-3839-616263646566", info.UUID)

	_, err = m.GetPoolInfo(ctx, "missing")
	assert.Error(t, err)
}

func TestManager_ListPools_Sorted(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMockLibvirtClient(), "", "")
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.CreatePool(ctx, name, PoolTypeDir, "/srv/"+name))
	}

	pools, err := m.ListPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 3)
	assert.Equal(t, "alpha", pools[0].Name)
	assert.Equal(t, "mid", pools[1].Name)
	assert.Equal(t, "zeta", pools[2].Name)
}

func TestGenerateDirPoolXML(t *testing.T) {
	xml, err := generateDirPoolXML("seeds", "/srv/seeds")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(xml, "<?xml"))

	var pool libvirtxml.StoragePool
	require.NoError(t, pool.Unmarshal(xml))
	assert.Equal(t, "dir", pool.Type)
	assert.Equal(t, "/srv/seeds", pool.Target.Path)

	uid, gid := qemuOwner()
	assert.Equal(t, uid, pool.Target.Permissions.Owner)
	assert.Equal(t, gid, pool.Target.Permissions.Group)
}
