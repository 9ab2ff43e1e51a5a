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

// Package catalog holds the read-only configuration the engine executes
// against: authentication records, APIs with their endpoints, and the
// functions exposed to the decision step.
//
// A catalog is loaded from a YAML or JSON document:
//
//	authentications:
//	  - id: linear-key
//	    type: api_key
//	    api_key: ${LINEAR_API_KEY}
//	    api_key_name: Authorization
//	apis:
//	  - id: linear
//	    base_url: https://api.linear.app
//	    auth: linear-key
//	    rate_limit: 100/hour
//	    endpoints:
//	      - name: create_issue
//	        path: /graphql
//	        method: POST
//	functions:
//	  - name: create_linear_issue
//	    api: linear
//	    endpoint: create_issue
//
// Loaded catalogs are immutable snapshots. Reloadable swaps snapshots
// atomically so in-flight calls keep the snapshot they started with.
package catalog
