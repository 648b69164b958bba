// Copyright 2024 Google Inc. All rights reserved.
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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

// Configuration keys. Every key can also be set in the --config file.
const (
	keyVerbose     = "verbose"
	keyDeviceID    = "device-id"
	keyAdb         = "adb"
	keyAapt2       = "aapt2"
	keyAndroidHome = "android-home"
)

// app holds state shared by the subcommands of one invocation.
type app struct {
	env    environment
	config *viper.Viper
	log    logger.Logger
}

func newRootCmd(env environment) *cobra.Command {
	a := &app{env: env, config: viper.New()}

	var cfgFile string
	root := &cobra.Command{
		Use:           "bundletool",
		Short:         "Install and extract APK sets, merge module splits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, cfgFile)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err, usage: cmd.UsageString()}
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML file providing defaults for flags (adb, aapt2, device-id, android-home, verbose)")
	root.PersistentFlags().BoolP(keyVerbose, "v", false, "print verbose messages")
	a.config.BindPFlag(keyVerbose, root.PersistentFlags().Lookup(keyVerbose))

	root.AddCommand(
		newInstallMultiApksCmd(a),
		newExtractApksCmd(a),
		newMergeSplitsCmd(a),
	)
	return root
}

// init reads the configuration. Flags take precedence over the config file,
// which takes precedence over the environment.
func (a *app) init(cmd *cobra.Command, cfgFile string) error {
	a.config.SetDefault(keyDeviceID, a.env.getenv("ANDROID_SERIAL"))
	a.config.SetDefault(keyAndroidHome, a.env.getenv("ANDROID_HOME"))
	if cfgFile != "" {
		a.config.SetConfigFile(cfgFile)
		if err := a.config.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	log := logger.New(cmd.ErrOrStderr())
	log.SetVerbose(a.config.GetBool(keyVerbose))
	a.log = log
	return nil
}

// bindFlags binds the flags of cmd named after keys to the configuration.
func (a *app) bindFlags(cmd *cobra.Command, keys ...string) error {
	for _, key := range keys {
		if err := a.config.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}
	return nil
}

// getenv resolves the Android SDK location through the configuration and
// everything else from the process environment.
func (a *app) getenv(key string) string {
	if key == "ANDROID_HOME" {
		return a.config.GetString(keyAndroidHome)
	}
	return a.env.getenv(key)
}

// toolPath returns the configured path of tool, or locates it.
func (a *app) toolPath(key string, locate func(tools.Getenv) (string, error)) (string, error) {
	if path := a.config.GetString(key); path != "" {
		if err := tools.CheckExecutable(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return locate(a.getenv)
}

func (a *app) runner(cmd *cobra.Command) tools.Runner {
	return a.env.newRunner(a.log, cmd.ErrOrStderr())
}
