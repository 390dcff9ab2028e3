// Package utils contains small helpers shared by the other packages.
package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// contextCheckInterval is how many members run between checks of the context.
const contextCheckInterval = 256

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated number of groups.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel splits totalSize work items into at most numGroups contiguous groups and runs
// each group on its own goroutine. Group g covers [from, to) with every earlier group covering lower
// items, so merging results by group number preserves item order. A numGroups below 1 means
// ParallelFactor. It returns the context's error if the context is done before all work has run,
// and an error for any panic raised by the work functions.
func GroupWorkParallel(
	ctx context.Context,
	totalSize, numGroups int,
	before BeforeParallelGroupWorkFunc,
	groupWork GroupWorkFunc,
) error {
	if numGroups < 1 {
		numGroups = ParallelFactor
	}
	if numGroups > totalSize {
		numGroups = totalSize
	}
	if numGroups < 1 {
		numGroups = 1
	}
	groupSize := totalSize / numGroups
	extra := totalSize % numGroups
	if before != nil {
		before(numGroups)
	}

	var errMu sync.Mutex
	var groupErrs error
	storeError := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		groupErrs = multierr.Append(groupErrs, err)
	}

	var cancelled atomic.Bool
	var wait sync.WaitGroup
	wait.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		groupNum := groupNum
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					storeError(fmt.Errorf("got panic in parallel group %d: %v", groupNum, thePanic))
				}
			}()

			thisGroupSize := groupSize
			thisExtra := 0
			if groupNum == (numGroups - 1) {
				thisExtra = extra
				thisGroupSize += thisExtra
			}
			from := groupSize * groupNum
			to := (groupSize * (groupNum + 1)) + thisExtra
			memberWork, groupWorkDone := groupWork(groupNum, thisGroupSize, from, to)
			if memberWork != nil {
				memberNum := 0
				for workNum := from; workNum < to; workNum++ {
					if memberNum%contextCheckInterval == 0 && ctx.Err() != nil {
						cancelled.Store(true)
						return
					}
					memberWork(memberNum, workNum)
					memberNum++
				}
			}
			if groupWorkDone != nil {
				groupWorkDone()
			}
		})
	}
	wait.Wait()
	if cancelled.Load() {
		return ctx.Err()
	}
	return groupErrs
}
