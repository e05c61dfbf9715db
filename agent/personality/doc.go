// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package personality holds the static definitions of conversational
participants.

A Personality carries its display name, system instruction, the provider
binding it is dispatched through (ai_name), display attributes and a role:
main participants take turns in rounds, the moderator summarizes, and helper
personalities generate topics and detect the conversation context.

Registry is an immutable snapshot loaded from YAML or built in code. Store
publishes the current snapshot atomically, and Watcher (fsnotify) reloads a
personality file into a Store whenever it changes on disk.
*/
package personality
