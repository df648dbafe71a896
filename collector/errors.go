// Copyright 2024 CardinalHQ, Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies a collector failure for logging. The classification
// never changes retry behavior.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureTimeout
	FailureAPIStatus
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureAPIStatus:
		return "api_status"
	default:
		return "other"
	}
}

// StatusError reports a non-created response from the collector.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector returned status %d", e.Code)
}

// Classify decides the failure kind from the error's own data.
func Classify(err error) FailureKind {
	var se *StatusError
	if errors.As(err, &se) {
		return FailureAPIStatus
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}
