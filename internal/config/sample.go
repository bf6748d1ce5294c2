package config

// SampleYAML is printed by `backitup config sample`. Every key can also be
// set through its BACKITUP_* environment variable, which takes precedence.
const SampleYAML = `# backitup configuration
SYSTEM:
  server_name: web01              # used in every archive name

DB:
  db_type: mysql                  # mysql or mariadb
  db_host: localhost
  db_port: 3306
  db_user: root
  db_password: ""                 # passed to the dump tool via MYSQL_PWD
  db_name: --all-databases        # or a single database name
  dump_command: mysqldump
  preflight_check: false          # ping the server before dumping

FILES:
  files_dir_path: /var/www

COMMANDS:
  pre_backup: ""                  # run through sh -c before the dump
  post_backup: ""                 # after the combined archive exists
  post_transfer: ""               # after a successful upload

BACKUP:
  destination_type: local         # local, ftp or sftp
  keep_local_copy: true           # false removes the local archive after upload
  keep_backups: 7
  backup_dir: .

LOGS:
  keep_logs: 30
  log_dir: logs
  log_level: info                 # debug, info, warn, error
  log_format: text                # text or json
  max_size_mb: 100

# FTP:
#   host: ftp.example.com
#   port: 21
#   username: backup
#   password: secret
#   remote_dir: /backups/web01
#   passive_mode: true

# SFTP:
#   host: backup.example.com
#   port: 22
#   username: backup
#   password: ""
#   private_key_path: /root/.ssh/id_ed25519
#   private_key_passphrase: ""
#   known_hosts_path: /root/.ssh/known_hosts
#   remote_dir: /backups/web01
`
