// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process runs external commands and guards against concurrent dockdb
instances.

# Overview

This package contains three components:

  - Manager: runs one external command and reports exit code, stdout, stderr
  - SearchPath: the executable search path, resolved once from the user's
    login shell so that engine binaries symlinked into e.g. /usr/local/bin
    or ~/.docker/bin are found when dockdb is launched from a desktop session
  - ProcessLock: flock(2)-based lock preventing two dockdb processes from
    mutating the same record store

# Manager

A non-zero exit status is not an error: it is reported in Result so the
caller can classify the engine's stderr. Run returns an error only when the
command could not be started at all (binary missing, permission denied).

	path := process.ResolveSearchPath(ctx, mgr, runtime.GOOS, os.Getenv("PATH"))
	res, err := mgr.Run(ctx, process.Command{
	    Name: "docker",
	    Args: []string{"ps", "-a"},
	    Env:  path.Env(),
	})

For testing, use MockManager:

	mock := &process.MockManager{
	    RunFunc: func(ctx context.Context, cmd process.Command) (process.Result, error) {
	        return process.Result{Stdout: []byte("abc123\n")}, nil
	    },
	}

# Thread Safety

  - DefaultManager and MockManager are safe for concurrent use
  - ProcessLock is safe for concurrent use; Acquire is idempotent

# Limitations

  - ProcessLock uses advisory locks and requires flock(2) support
*/
package process
