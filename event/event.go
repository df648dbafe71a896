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

package event

import (
	"time"

	"github.com/google/uuid"
)

// Request is the request half of a captured exchange.
type Request struct {
	Time      time.Time         `json:"time"`
	Method    string            `json:"method"`
	URI       string            `json:"uri"`
	IPAddress string            `json:"ipAddress,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
}

// Response is the response half of a captured exchange.
type Response struct {
	Time    time.Time         `json:"time"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Event is one captured request/response exchange. The capture pipeline
// consults only UserID, CompanyID, and Weight; everything else is payload
// passed through to the collector. An event must not be mutated after it
// has been handed to the pipeline.
type Event struct {
	TransactionID string         `json:"transactionId,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	CompanyID     string         `json:"companyId,omitempty"`
	Weight        int            `json:"weight"`
	Request       Request        `json:"request"`
	Response      Response       `json:"response"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// New returns an event with a fresh transaction id.
func New() *Event {
	return &Event{
		TransactionID: uuid.NewString(),
	}
}
