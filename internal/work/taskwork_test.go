package work

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMode_ChunkSize(t *testing.T) {
	assert.Equal(t, 1, Sequential().ChunkSize())
	assert.Equal(t, 4, Parallel(4).ChunkSize())
	assert.Equal(t, 1, Parallel(0).ChunkSize())
	assert.Equal(t, 1, RunMode{}.ChunkSize())
}

func TestTaskWork_RunsAllTasksAndMergesResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "w")

	var tasks []Task
	for i := 0; i < 5; i++ {
		i := i
		tasks = append(tasks, TaskFunc{
			TaskName: fmt.Sprintf("ecut_%d", i),
			Fn: func(ctx context.Context, taskDir string) (Results, error) {
				return Results{fmt.Sprintf("k%d", i): i}, nil
			},
		})
	}

	w := NewTaskWork(dir, tasks, nil)
	require.NoError(t, w.Start(context.Background(), 2))
	require.NoError(t, w.Wait())

	res, err := w.Results()
	require.NoError(t, err)
	assert.Len(t, res, 5)
	assert.Equal(t, 3, res["k3"])
}

func TestTaskWork_SequentialChunkNeverOverlaps(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "w")

	var mu sync.Mutex
	running, maxRunning := 0, 0

	var tasks []Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, TaskFunc{
			TaskName: fmt.Sprintf("t%d", i),
			Fn: func(ctx context.Context, taskDir string) (Results, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return Results{}, nil
			},
		})
	}

	w := NewTaskWork(dir, tasks, nil)
	require.NoError(t, w.Start(context.Background(), 1))
	require.NoError(t, w.Wait())

	assert.Equal(t, 1, maxRunning)
}

func TestTaskWork_TaskFailurePropagates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "w")
	boom := errors.New("scf did not converge")

	w := NewTaskWork(dir, []Task{
		TaskFunc{TaskName: "ok", Fn: func(ctx context.Context, d string) (Results, error) {
			return Results{"a": 1}, nil
		}},
		TaskFunc{TaskName: "bad", Fn: func(ctx context.Context, d string) (Results, error) {
			return nil, boom
		}},
	}, nil)

	require.NoError(t, w.Start(context.Background(), 2))
	err := w.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, err = w.Results()
	assert.Error(t, err)
}

func TestTaskWork_ResultsBeforeWaitFails(t *testing.T) {
	w := NewTaskWork(filepath.Join(t.TempDir(), "w"), nil, nil)
	_, err := w.Results()
	assert.Error(t, err)
}

func TestTaskWork_DoubleStartFails(t *testing.T) {
	w := NewTaskWork(filepath.Join(t.TempDir(), "w"), nil, nil)
	require.NoError(t, w.Start(context.Background(), 1))
	assert.Error(t, w.Start(context.Background(), 1))
	require.NoError(t, w.Wait())
}

func TestTaskWork_CondenserShapesResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "w")

	w := NewTaskWork(dir, []Task{
		TaskFunc{TaskName: "a", Fn: func(ctx context.Context, d string) (Results, error) {
			return Results{"etotal": -10.0}, nil
		}},
		TaskFunc{TaskName: "b", Fn: func(ctx context.Context, d string) (Results, error) {
			return Results{"etotal": -11.0}, nil
		}},
	}, func(perTask []Results) (Results, error) {
		sum := 0.0
		for _, r := range perTask {
			sum += r["etotal"].(float64)
		}
		return Results{"sum": sum}, nil
	})

	require.NoError(t, w.Start(context.Background(), 2))
	require.NoError(t, w.Wait())

	res, err := w.Results()
	require.NoError(t, err)
	assert.Equal(t, -21.0, res["sum"])
}

func TestTaskWork_MoveRelocatesTree(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "w")

	w := NewTaskWork(dir, []Task{
		TaskFunc{TaskName: "a", Fn: func(ctx context.Context, d string) (Results, error) {
			return Results{}, nil
		}},
	}, nil)

	require.NoError(t, w.Start(context.Background(), 1))
	require.NoError(t, w.Wait())
	require.NoError(t, w.Move("ITERATIVE"))

	assert.Equal(t, filepath.Join(parent, "ITERATIVE"), w.Workdir())
	assert.Equal(t, filepath.Join(parent, "ITERATIVE", "x.json"), w.PathInWorkdir("x.json"))

	_, err := os.Stat(filepath.Join(parent, "ITERATIVE", "task_0_a"))
	assert.NoError(t, err)
}
