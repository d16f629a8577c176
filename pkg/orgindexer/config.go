// Copyright © 2025 Orgstream Labs, Inc.
//
// SPDX-License-Identifier: Apache-2.0
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

package orgindexer

import (
	"context"
	"os"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/orgstream-labs/orgindexer/internal/dispatcher"
	"github.com/orgstream-labs/orgindexer/internal/metadata"
	"github.com/orgstream-labs/orgindexer/internal/msgs"
	"github.com/orgstream-labs/orgindexer/internal/reducers"
	"github.com/orgstream-labs/orgindexer/pkg/persistence"
	"github.com/orgstream-labs/orgindexer/pkg/types"
	"sigs.k8s.io/yaml"
)

type Config struct {
	RegistryAddress *types.EthAddress  `json:"registryAddress"`
	DB              persistence.Config `json:"db"`
	Dispatcher      dispatcher.Config  `json:"dispatcher"`
	Populator       metadata.Config    `json:"populator"`
	StubPolicies    StubPoliciesConfig `json:"stubPolicies"`
}

// StubPoliciesConfig selects, per entity family, what happens when a
// configuration event arrives for an entity with no creation event yet.
// Empty values take the family's default. Proposals carry no policy
// because no proposal event can precede its creation event, and setting
// one is rejected rather than silently ignored.
type StubPoliciesConfig struct {
	Tasks         string `json:"tasks"`
	Projects      string `json:"projects"`
	Proposals     string `json:"proposals"`
	Distributions string `json:"distributions"`
}

// LoadConfig reads a YAML (or JSON) config file
func LoadConfig(ctx context.Context, filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgConfigFileReadFailed, filePath)
	}
	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgConfigFileParseFailed, filePath)
	}
	return &conf, nil
}

func (spc *StubPoliciesConfig) policies(ctx context.Context) (*reducers.Policies, error) {
	if spc.Proposals != "" {
		return nil, i18n.NewError(ctx, msgs.MsgConfigStubPolicyUnsupported, "proposals")
	}
	policies := reducers.DefaultPolicies()
	for _, f := range []struct {
		family string
		value  string
		target *reducers.StubPolicy
	}{
		{"tasks", spc.Tasks, &policies.Tasks},
		{"projects", spc.Projects, &policies.Projects},
		{"distributions", spc.Distributions, &policies.Distributions},
	} {
		if f.value == "" {
			continue
		}
		sp := reducers.StubPolicy(f.value)
		if err := sp.Validate(ctx, f.family); err != nil {
			return nil, err
		}
		*f.target = sp
	}
	return policies, nil
}
