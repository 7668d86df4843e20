/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package consts provides definitions of constants
package consts

var (
	// AppName is the name of the application and of its directories
	AppName = "readlater"
	// DBFileName is a filename for the SQLite database
	DBFileName = "readlater.db"
	// ConfigFilename is the name of the config file
	ConfigFilename = "readlaterrc"
	// EnvFilename is the name of the optional env file in the config directory
	EnvFilename = ".env"
	// LockDirName is the name of the directory holding lock files, under the data directory
	LockDirName = "locks"
	// ControlDirName is the name of the directory receiving control messages, under the data directory
	ControlDirName = "control"
	// HeartbeatFilename is the name of the file the keepalive guard touches, under the data directory
	HeartbeatFilename = "heartbeat"
	// DaemonLogFilename is the default name of the daemon log file, under the cache directory
	DaemonLogFilename = "daemon.log"

	// LockName is the name of the sync lock
	LockName = "readlater-sync"
)
