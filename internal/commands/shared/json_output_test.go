// Copyright 2025 Tom Barlow
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

package shared

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEmitJSON_Envelope(t *testing.T) {
	type statusResponse struct {
		JSONResponse
		Clients []int `json:"clients"`
	}

	var buf bytes.Buffer
	err := EmitJSON(&buf, statusResponse{
		JSONResponse: NewJSONResponse("status", true),
		Clients:      []int{1, 2},
	})
	if err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if raw["@version"] != JSONVersion {
		t.Errorf("@version = %v, want %q", raw["@version"], JSONVersion)
	}
	if raw["command"] != "status" || raw["success"] != true {
		t.Errorf("envelope = %v", raw)
	}
	if clients, ok := raw["clients"].([]interface{}); !ok || len(clients) != 2 {
		t.Errorf("clients = %v", raw["clients"])
	}
}

func TestEmitJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := EmitJSONError(&buf, "reconcile", []JSONError{
		{Code: "registry_io", Message: "permission denied", Suggestion: "check the lock file"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Success {
		t.Error("error response should not be successful")
	}
	if len(decoded.Errors) != 1 || decoded.Errors[0].Code != "registry_io" {
		t.Errorf("errors = %+v", decoded.Errors)
	}
}
