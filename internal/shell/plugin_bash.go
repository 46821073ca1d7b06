package shell

// BashPlugin is the bash plugin source. A DEBUG trap appends commands with
// epoch timestamps to the oprec command log while a recording is active.
const BashPlugin = `# oprec shell plugin, generated by "oprec setup", do not edit
# Source this file from your ~/.bashrc:
#   source ~/.config/oprec/oprec.plugin.bash

_oprec_data_dir="${XDG_DATA_HOME:-$HOME/.local/share}/oprec"

_oprec_preexec() {
  [[ -f "$_oprec_data_dir/session.json" ]] || return
  # Skip the prompt machinery itself.
  [[ -n "$COMP_LINE" || "$BASH_COMMAND" == "$PROMPT_COMMAND" ]] && return
  local cmd="$BASH_COMMAND"
  [[ "$cmd" =~ ^[[:space:]]*(.*/)?oprec([[:space:]]|$) ]] && return
  printf '%s\t%s\n' "$(date +%s)" "$cmd" >> "$_oprec_data_dir/commands.log"
}

trap '_oprec_preexec' DEBUG
`
