package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/service/registry"
	"github.com/viant/spawner/service/registry/memory"
)

func TestService_Admit(t *testing.T) {
	ctx := context.Background()
	reg := memory.New()
	reg.SetDepth("deep", 1)
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, reg.RegisterTask(ctx, &registry.TaskMetadata{TaskID: id, Identity: "child-" + id, ParentKey: "busy"}))
	}
	srv := New(reg, DefaultConfig())

	testCases := []struct {
		name      string
		parentKey string
		requested int
		denied    bool
	}{
		{name: "root single", parentKey: "root", requested: 1},
		{name: "root at quota", parentKey: "root", requested: 5},
		{name: "root over quota", parentKey: "root", requested: 6, denied: true},
		{name: "depth reached", parentKey: "deep", requested: 1, denied: true},
		{name: "active plus requested fits", parentKey: "busy", requested: 2},
		{name: "active plus requested exceeds", parentKey: "busy", requested: 3, denied: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := srv.Admit(ctx, tc.parentKey, tc.requested)
			if !tc.denied {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errs.ErrAdmissionDenied)
		})
	}
}
